package security

import (
	"strings"
	"testing"
)

// TestSanitize_RemovesScriptTag はscriptタグが除去されることをテストする。
func TestSanitize_RemovesScriptTag(t *testing.T) {
	s := NewContentSanitizer()
	out := s.Sanitize(`<p>本文</p><script>alert("xss")</script>`)
	if strings.Contains(out, "script") {
		t.Errorf("scriptタグは除去されるべき: %s", out)
	}
	if !strings.Contains(out, "<p>本文</p>") {
		t.Errorf("許可タグは保持されるべき: %s", out)
	}
}

// TestSanitize_RemovesEventAttributes はon*イベント属性が除去されることをテストする。
func TestSanitize_RemovesEventAttributes(t *testing.T) {
	s := NewContentSanitizer()
	out := s.Sanitize(`<p onclick="evil()">テキスト</p>`)
	if strings.Contains(out, "onclick") {
		t.Errorf("onclick属性は除去されるべき: %s", out)
	}
}

// TestSanitize_ImageHTTPSOnly はimgのsrcがhttpsのみ許可されることをテストする。
func TestSanitize_ImageHTTPSOnly(t *testing.T) {
	s := NewContentSanitizer()

	httpsOut := s.Sanitize(`<img src="https://example.com/a.png" alt="画像">`)
	if !strings.Contains(httpsOut, "https://example.com/a.png") {
		t.Errorf("httpsのimg srcは許可されるべき: %s", httpsOut)
	}

	httpOut := s.Sanitize(`<img src="http://example.com/a.png">`)
	if strings.Contains(httpOut, "http://example.com/a.png") {
		t.Errorf("httpのimg srcは拒否されるべき: %s", httpOut)
	}
}

// TestSanitize_LinkRelAttributes はaタグにrel属性が自動付与されることをテストする。
func TestSanitize_LinkRelAttributes(t *testing.T) {
	s := NewContentSanitizer()
	out := s.Sanitize(`<a href="https://example.com">リンク</a>`)
	if !strings.Contains(out, "noopener") || !strings.Contains(out, "noreferrer") {
		t.Errorf("aタグにはrel=noopener noreferrerが付与されるべき: %s", out)
	}
	if !strings.Contains(out, `target="_blank"`) {
		t.Errorf("aタグにはtarget=_blankが付与されるべき: %s", out)
	}
}

// TestSanitize_ShowNoteHeadings はショーノート用の見出しタグが保持されることをテストする。
func TestSanitize_ShowNoteHeadings(t *testing.T) {
	s := NewContentSanitizer()
	out := s.Sanitize(`<h2>第1章</h2><h5>除去される見出し</h5>`)
	if !strings.Contains(out, "<h2>第1章</h2>") {
		t.Errorf("h2は保持されるべき: %s", out)
	}
	if strings.Contains(out, "<h5>") {
		t.Errorf("h5は除去されるべき: %s", out)
	}
}

// TestSanitize_Idempotent は同一入力に対して常に同一出力を返すことをテストする。
func TestSanitize_Idempotent(t *testing.T) {
	s := NewContentSanitizer()
	input := `<p>テキスト<script>x</script></p>`
	first := s.Sanitize(input)
	second := s.Sanitize(first)
	if first != second {
		t.Errorf("サニタイズは冪等であるべき: 1回目=%s 2回目=%s", first, second)
	}
}

// TestSanitize_EmptyInput は空文字列の入力に空文字列を返すことをテストする。
func TestSanitize_EmptyInput(t *testing.T) {
	s := NewContentSanitizer()
	if out := s.Sanitize(""); out != "" {
		t.Errorf("空入力には空出力を返すべき: %q", out)
	}
}
