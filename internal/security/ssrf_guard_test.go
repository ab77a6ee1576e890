package security

import (
	"strings"
	"testing"
)

// TestValidateURL_AllowsPublicHTTPS は公開HTTPSのURLが許可されることをテストする。
func TestValidateURL_AllowsPublicHTTPS(t *testing.T) {
	g := NewSSRFGuard()
	if err := g.ValidateURL("https://example.com/feed.xml"); err != nil {
		t.Errorf("公開HTTPSのURLは許可されるべき: %v", err)
	}
}

// TestValidateURL_BlocksPrivateIPs はプライベートIPへのURLが拒否されることをテストする。
func TestValidateURL_BlocksPrivateIPs(t *testing.T) {
	g := NewSSRFGuard()
	blocked := []string{
		"http://10.0.0.1/feed",
		"http://172.16.0.1/feed",
		"http://192.168.1.1/feed",
		"http://127.0.0.1/feed",
		"http://169.254.169.254/latest/meta-data/",
		"http://0.0.0.0/",
	}
	for _, u := range blocked {
		if err := g.ValidateURL(u); err == nil {
			t.Errorf("プライベート/メタデータIPは拒否されるべき: %s", u)
		}
	}
}

// TestValidateURL_BlocksLocalhost はlocalhostホスト名が拒否されることをテストする。
func TestValidateURL_BlocksLocalhost(t *testing.T) {
	g := NewSSRFGuard()
	if err := g.ValidateURL("http://localhost:8080/feed"); err == nil {
		t.Error("localhostは拒否されるべき")
	}
	if err := g.ValidateURL("http://metadata.google.internal/"); err == nil {
		t.Error("metadata.google.internalは拒否されるべき")
	}
}

// TestValidateURL_BlocksDisallowedSchemes はhttp/https以外のスキームが拒否されることをテストする。
func TestValidateURL_BlocksDisallowedSchemes(t *testing.T) {
	g := NewSSRFGuard()
	for _, u := range []string{"file:///etc/passwd", "ftp://example.com/", "javascript:alert(1)"} {
		err := g.ValidateURL(u)
		if err == nil {
			t.Errorf("スキームは拒否されるべき: %s", u)
			continue
		}
		if !strings.Contains(err.Error(), "scheme") && !strings.Contains(err.Error(), "host") {
			t.Errorf("エラー理由にスキームまたはホストが含まれるべき: %v", err)
		}
	}
}

// TestValidateURL_EmptyURL は空URLが拒否されることをテストする。
func TestValidateURL_EmptyURL(t *testing.T) {
	g := NewSSRFGuard()
	if err := g.ValidateURL(""); err == nil {
		t.Error("空URLは拒否されるべき")
	}
}
