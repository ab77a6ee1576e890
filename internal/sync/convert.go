// Package sync はソースの定期・手動同期エンジンを提供する。
// フィードの取得、プラットフォーム別のパース結果変換、
// 直近ウィンドウによるフィルタ、コンテンツのUPSERTを束ねる。
package sync

import (
	"strconv"
	"strings"

	"github.com/mmcdole/gofeed"
	ext "github.com/mmcdole/gofeed/extensions"

	"github.com/hitoshi/unifeed/internal/model"
)

// convertItems はgofeedのアイテムをソース種別に応じてParsedContentへ変換する。
// native_idの導出規則:
//   - YouTube: yt:videoId 拡張（なければGUID）
//   - ポッドキャスト: 音声エンクロージャのURL（なければGUID、次いでリンク）
//   - RSS/その他: GUID（なければリンク。どちらもない場合は空のままとし、
//     UPSERT側のcontent_hashフォールバックに委ねる）
func convertItems(kind model.SourceKind, items []*gofeed.Item) []model.ParsedContent {
	parsed := make([]model.ParsedContent, 0, len(items))

	for _, item := range items {
		if item == nil {
			continue
		}

		p := model.ParsedContent{
			Title:       item.Title,
			Link:        item.Link,
			Content:     item.Content,
			Summary:     item.Description,
			PublishedAt: item.PublishedParsed,
		}

		// 著者情報
		if item.Author != nil {
			p.Author = item.Author.Name
		}
		if p.Author == "" && len(item.Authors) > 0 && item.Authors[0] != nil {
			p.Author = item.Authors[0].Name
		}

		switch kind {
		case model.SourceKindYouTubeChannel, model.SourceKindYouTubeVideo:
			applyYouTubeFields(&p, item)
		case model.SourceKindPodcast:
			applyPodcastFields(&p, item)
		default:
			applyGenericFields(&p, item)
		}

		parsed = append(parsed, p)
	}

	return parsed
}

// applyYouTubeFields はYouTubeフィード固有のフィールドを変換する。
// yt:videoIdを安定IDとし、media:group拡張からサムネイルと再生回数を抽出する。
func applyYouTubeFields(p *model.ParsedContent, item *gofeed.Item) {
	p.NativeID = extensionValue(item, "yt", "videoId")
	if p.NativeID == "" {
		p.NativeID = item.GUID
	}

	// media:group > media:thumbnail
	if group, ok := firstExtension(item, "media", "group"); ok {
		if thumbs, ok := group.Children["thumbnail"]; ok && len(thumbs) > 0 {
			p.ThumbnailURL = thumbs[0].Attrs["url"]
		}
		// media:group > media:description（YouTubeは説明文をここに置く）
		if p.Summary == "" {
			if descs, ok := group.Children["description"]; ok && len(descs) > 0 {
				p.Summary = descs[0].Value
			}
		}
		// media:group > media:community > media:statistics views属性
		if comm, ok := group.Children["community"]; ok && len(comm) > 0 {
			if stats, ok := comm[0].Children["statistics"]; ok && len(stats) > 0 {
				if views, err := strconv.ParseInt(stats[0].Attrs["views"], 10, 64); err == nil {
					p.ViewCount = views
				}
			}
		}
	}
}

// applyPodcastFields はポッドキャストフィード固有のフィールドを変換する。
// 音声エンクロージャのURLを安定IDとし、iTunes拡張から再生時間を抽出する。
func applyPodcastFields(p *model.ParsedContent, item *gofeed.Item) {
	for _, enc := range item.Enclosures {
		if enc != nil && strings.HasPrefix(strings.ToLower(enc.Type), "audio/") {
			p.AudioURL = enc.URL
			break
		}
	}

	p.NativeID = p.AudioURL
	if p.NativeID == "" {
		p.NativeID = item.GUID
	}
	if p.NativeID == "" {
		p.NativeID = item.Link
	}

	if item.ITunesExt != nil {
		p.DurationSeconds = parseITunesDuration(item.ITunesExt.Duration)
		if p.Author == "" {
			p.Author = item.ITunesExt.Author
		}
		if p.Summary == "" {
			p.Summary = item.ITunesExt.Summary
		}
		if item.ITunesExt.Image != "" {
			p.ThumbnailURL = item.ITunesExt.Image
		}
	}
}

// applyGenericFields は一般的なRSS/Atomフィードのフィールドを変換する。
func applyGenericFields(p *model.ParsedContent, item *gofeed.Item) {
	p.NativeID = item.GUID
	if p.NativeID == "" {
		p.NativeID = item.Link
	}
	if item.Image != nil {
		p.ThumbnailURL = item.Image.URL
	}
}

// firstExtension は指定した名前空間・名前の最初の拡張要素を返す。
func firstExtension(item *gofeed.Item, space, name string) (ext.Extension, bool) {
	exts, ok := item.Extensions[space]
	if !ok {
		return ext.Extension{}, false
	}
	nodes, ok := exts[name]
	if !ok || len(nodes) == 0 {
		return ext.Extension{}, false
	}
	return nodes[0], true
}

// extensionValue は指定した名前空間・名前の拡張要素の値を返す。
func extensionValue(item *gofeed.Item, space, name string) string {
	node, ok := firstExtension(item, space, name)
	if !ok {
		return ""
	}
	return strings.TrimSpace(node.Value)
}

// parseITunesDuration はiTunesのduration表記を秒数に変換する。
// "3723"（秒数）、"62:03"（MM:SS）、"1:02:03"（HH:MM:SS）の3形式を受け付ける。
// パース不能な場合は0を返す。
func parseITunesDuration(s string) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}

	parts := strings.Split(s, ":")
	if len(parts) == 1 {
		secs, err := strconv.Atoi(parts[0])
		if err != nil || secs < 0 {
			return 0
		}
		return secs
	}
	if len(parts) > 3 {
		return 0
	}

	total := 0
	for _, part := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || n < 0 {
			return 0
		}
		total = total*60 + n
	}
	return total
}
