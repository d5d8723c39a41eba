// internal/browser/session_test.go
package browser

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/enroll-cli/internal/config"
)

const defaultBrowserTestTimeout = 60 * time.Second

const formPage = `<!doctype html>
<html><body>
<form onsubmit="return false">
  <input name="userEmail" value="prefilled">
  <button type="button" id="go"><span>이메일로 계속하기</span></button>
</form>
<div id="out"></div>
<script>
document.getElementById('go').addEventListener('click', function () {
  var email = document.querySelector('input[name="userEmail"]').value;
  fetch('/users/v1.0/users/me').then(function (r) { return r.json(); }).then(function (j) {
    var li = document.createElement('li');
    li.textContent = email + ' ' + j.wid;
    document.getElementById('out').appendChild(li);
  });
});
</script>
</body></html>`

func findChrome(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("browser tests are skipped in short mode")
	}
	for _, name := range []string{"google-chrome", "google-chrome-stable", "chromium", "chromium-browser", "headless-shell"} {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}
	t.Skip("no Chrome or Chromium executable found")
	return ""
}

func TestSessionAgainstLocalPage(t *testing.T) {
	execPath := findChrome(t)

	mux := http.NewServeMux()
	mux.HandleFunc("/signup", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, formPage)
	})
	mux.HandleFunc("/users/v1.0/users/me", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"wid":"W-1001"}`)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), defaultBrowserTestTimeout)
	defer cancel()

	m := NewManager(config.BrowserConfig{
		Headless:    true,
		ExecPath:    execPath,
		Timeout:     20 * time.Second,
		WaitTimeout: 5 * time.Second,
	}, zaptest.NewLogger(t))
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
		defer cancel()
		assert.NoError(t, m.Shutdown(shutdownCtx))
	}()

	s, err := m.NewSession(ctx)
	require.NoError(t, err)
	defer s.Close()

	bodies := make(chan Response, 1)
	stop, err := s.OnResponse(ctx, func(url string, status int) bool {
		return strings.Contains(url, "users/v1.0/users/me") && status == http.StatusOK
	}, func(r Response) { bodies <- r })
	require.NoError(t, err)
	defer stop()

	require.NoError(t, s.Navigate(ctx, server.URL+"/signup"))
	current, err := s.CurrentURL(ctx)
	require.NoError(t, err)
	assert.Equal(t, server.URL+"/signup", current)

	ok, err := s.HasElement(ctx, `input[name="userEmail"]`)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = s.HasElement(ctx, `input[name="missing"]`)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Fill(ctx, `input[name="userEmail"]`, "abc@benx.com"))
	require.NoError(t, s.Click(ctx, `//span[contains(text(),"이메일로 계속하기")]`))
	require.NoError(t, s.WaitForElement(ctx, `//li[contains(text(),"abc@benx.com W-1001")]`, 5*time.Second))

	select {
	case r := <-bodies:
		assert.JSONEq(t, `{"wid":"W-1001"}`, string(r.Body))
		assert.Equal(t, http.StatusOK, r.Status)
	case <-ctx.Done():
		t.Fatal("identifier response was not observed")
	}

	err = s.WaitForElement(ctx, `#never`, 300*time.Millisecond)
	assert.True(t, errors.Is(err, ErrElementTimeout), "got %v", err)
}
