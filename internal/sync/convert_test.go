package sync

import (
	"testing"
	"time"

	"github.com/mmcdole/gofeed"
	ext "github.com/mmcdole/gofeed/extensions"

	"github.com/hitoshi/unifeed/internal/model"
)

// youtubeTestItem はYouTubeフィードの拡張構造を再現したgofeedアイテムを組み立てる。
func youtubeTestItem() *gofeed.Item {
	published := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	return &gofeed.Item{
		Title:           "新作動画",
		Link:            "https://www.youtube.com/watch?v=dQw4w9WgXcQ",
		GUID:            "yt:video:dQw4w9WgXcQ",
		PublishedParsed: &published,
		Extensions: ext.Extensions{
			"yt": {
				"videoId": []ext.Extension{{Name: "videoId", Value: "dQw4w9WgXcQ"}},
			},
			"media": {
				"group": []ext.Extension{{
					Name: "group",
					Children: map[string][]ext.Extension{
						"thumbnail": {{
							Name:  "thumbnail",
							Attrs: map[string]string{"url": "https://i.ytimg.com/vi/dQw4w9WgXcQ/hqdefault.jpg"},
						}},
						"description": {{Name: "description", Value: "動画の説明文"}},
						"community": {{
							Name: "community",
							Children: map[string][]ext.Extension{
								"statistics": {{
									Name:  "statistics",
									Attrs: map[string]string{"views": "123456"},
								}},
							},
						}},
					},
				}},
			},
		},
	}
}

// TestConvertItems_YouTubeの拡張を変換する はyt:videoIdが安定IDになり、
// media:group拡張からサムネイル・説明文・再生回数が抽出されることを確認する。
func TestConvertItems_YouTubeの拡張を変換する(t *testing.T) {
	parsed := convertItems(model.SourceKindYouTubeChannel, []*gofeed.Item{youtubeTestItem()})

	if len(parsed) != 1 {
		t.Fatalf("1件変換されるはずが%d件", len(parsed))
	}
	p := parsed[0]
	if p.NativeID != "dQw4w9WgXcQ" {
		t.Errorf("NativeIDがyt:videoIdになるはずが%q", p.NativeID)
	}
	if p.ThumbnailURL != "https://i.ytimg.com/vi/dQw4w9WgXcQ/hqdefault.jpg" {
		t.Errorf("サムネイルURLが抽出されていない: %q", p.ThumbnailURL)
	}
	if p.Summary != "動画の説明文" {
		t.Errorf("media:descriptionが抽出されるはずが%q", p.Summary)
	}
	if p.ViewCount != 123456 {
		t.Errorf("再生回数が123456になるはずが%d", p.ViewCount)
	}
}

// TestConvertItems_YouTubeのvideoId欠落時はGUIDを使う は拡張のない
// アイテムでGUIDにフォールバックすることを確認する。
func TestConvertItems_YouTubeのvideoId欠落時はGUIDを使う(t *testing.T) {
	item := &gofeed.Item{Title: "動画", GUID: "yt:video:abc"}

	parsed := convertItems(model.SourceKindYouTubeChannel, []*gofeed.Item{item})

	if parsed[0].NativeID != "yt:video:abc" {
		t.Errorf("GUIDにフォールバックするはずが%q", parsed[0].NativeID)
	}
}

// TestConvertItems_ポッドキャストのエンクロージャとiTunes拡張 は音声エンクロージャが
// 安定IDと音声URLになり、iTunes拡張から再生時間が抽出されることを確認する。
func TestConvertItems_ポッドキャストのエンクロージャとiTunes拡張(t *testing.T) {
	item := &gofeed.Item{
		Title: "エピソード1",
		Link:  "https://example.com/ep1",
		GUID:  "ep-1",
		Enclosures: []*gofeed.Enclosure{
			{URL: "https://example.com/ep1.pdf", Type: "application/pdf"},
			{URL: "https://example.com/ep1.mp3", Type: "audio/mpeg"},
		},
		ITunesExt: &ext.ITunesItemExtension{
			Duration: "1:02:03",
			Author:   "配信者",
			Image:    "https://example.com/cover.jpg",
		},
	}

	parsed := convertItems(model.SourceKindPodcast, []*gofeed.Item{item})

	p := parsed[0]
	if p.AudioURL != "https://example.com/ep1.mp3" {
		t.Errorf("音声エンクロージャだけが選ばれるはずが%q", p.AudioURL)
	}
	if p.NativeID != "https://example.com/ep1.mp3" {
		t.Errorf("NativeIDが音声URLになるはずが%q", p.NativeID)
	}
	if p.DurationSeconds != 3723 {
		t.Errorf("再生時間が3723秒になるはずが%d", p.DurationSeconds)
	}
	if p.Author != "配信者" {
		t.Errorf("iTunes拡張の著者が使われるはずが%q", p.Author)
	}
	if p.ThumbnailURL != "https://example.com/cover.jpg" {
		t.Errorf("iTunes画像が使われるはずが%q", p.ThumbnailURL)
	}
}

// TestConvertItems_ポッドキャストのエンクロージャ欠落時はGUIDを使う は
// 音声のないエピソードがGUID、次いでリンクにフォールバックすることを確認する。
func TestConvertItems_ポッドキャストのエンクロージャ欠落時はGUIDを使う(t *testing.T) {
	withGUID := &gofeed.Item{Title: "エピソード", GUID: "ep-2", Link: "https://example.com/ep2"}
	withoutGUID := &gofeed.Item{Title: "エピソード", Link: "https://example.com/ep3"}

	parsed := convertItems(model.SourceKindPodcast, []*gofeed.Item{withGUID, withoutGUID})

	if parsed[0].NativeID != "ep-2" {
		t.Errorf("GUIDにフォールバックするはずが%q", parsed[0].NativeID)
	}
	if parsed[1].NativeID != "https://example.com/ep3" {
		t.Errorf("リンクにフォールバックするはずが%q", parsed[1].NativeID)
	}
}

// TestConvertItems_RSSのGUIDとリンクのフォールバック は一般フィードの
// 安定IDの導出順序を確認する。
func TestConvertItems_RSSのGUIDとリンクのフォールバック(t *testing.T) {
	withGUID := &gofeed.Item{Title: "記事A", GUID: "guid-a", Link: "https://example.com/a"}
	linkOnly := &gofeed.Item{Title: "記事B", Link: "https://example.com/b"}
	neither := &gofeed.Item{Title: "記事C"}

	parsed := convertItems(model.SourceKindRSS, []*gofeed.Item{withGUID, linkOnly, neither})

	if parsed[0].NativeID != "guid-a" {
		t.Errorf("GUIDが優先されるはずが%q", parsed[0].NativeID)
	}
	if parsed[1].NativeID != "https://example.com/b" {
		t.Errorf("リンクにフォールバックするはずが%q", parsed[1].NativeID)
	}
	if parsed[2].NativeID != "" {
		t.Errorf("GUIDもリンクもないアイテムは空のままのはずが%q", parsed[2].NativeID)
	}
}

// TestParseITunesDuration_3形式を受け付ける はduration表記のパースを確認する。
func TestParseITunesDuration_3形式を受け付ける(t *testing.T) {
	if got := parseITunesDuration("3723"); got != 3723 {
		t.Errorf("秒数表記は3723になるはずが%d", got)
	}
	if got := parseITunesDuration("62:03"); got != 3723 {
		t.Errorf("MM:SS表記は3723になるはずが%d", got)
	}
	if got := parseITunesDuration("1:02:03"); got != 3723 {
		t.Errorf("HH:MM:SS表記は3723になるはずが%d", got)
	}
	if got := parseITunesDuration(""); got != 0 {
		t.Errorf("空文字は0になるはずが%d", got)
	}
	if got := parseITunesDuration("abc"); got != 0 {
		t.Errorf("不正な表記は0になるはずが%d", got)
	}
	if got := parseITunesDuration("1:2:3:4"); got != 0 {
		t.Errorf("4要素以上は0になるはずが%d", got)
	}
}
