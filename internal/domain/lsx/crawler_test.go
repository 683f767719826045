package lsx

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func reportPage(host string) string {
	return fmt.Sprintf(`<html><body>
<ul>
  <li><a href="/media/kursblatt/LSX_Kursblatt_2021-03-01.pdf">01.03.2021</a></li>
  <li><a href="%s/media/kursblatt/LSX_Kursblatt_2021-03-01.pdf">again</a></li>
  <li><a href="files/LSX%%20Kursblatt%%202021-03-02.PDF">02.03.2021</a></li>
  <li><a href="/de/impressum">Impressum</a></li>
  <li><a href="/media/terms.pdf.html">terms</a></li>
</ul>
</body></html>`, host)
}

func TestReportCrawler_Links(t *testing.T) {
	var host string
	mux := http.NewServeMux()
	mux.HandleFunc(ReportsPath, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(reportPage(host)))
	})
	client, srv := newTestClient(t, mux)
	host = srv.URL

	crawler := NewReportCrawler(client, client.logger)
	links, err := crawler.Links(context.Background())
	require.NoError(t, err)

	require.Len(t, links, 2)
	assert.Equal(t, ReportLink{
		URL:  srv.URL + "/media/kursblatt/LSX_Kursblatt_2021-03-01.pdf",
		Name: "LSX_Kursblatt_2021-03-01.pdf",
	}, links[0])
	assert.Equal(t, srv.URL+"/de/files/LSX%20Kursblatt%202021-03-02.PDF", links[1].URL)
	assert.Equal(t, "LSX Kursblatt 2021-03-02.PDF", links[1].Name)
}

func TestReportCrawler_Errors(t *testing.T) {
	t.Run("page missing", func(t *testing.T) {
		client, _ := newTestClient(t, http.NotFoundHandler())
		_, err := NewReportCrawler(client, client.logger).Links(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "404")
	})

	t.Run("cancelled context", func(t *testing.T) {
		client, _ := newTestClient(t, http.NotFoundHandler())
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := NewReportCrawler(client, client.logger).Links(ctx)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestReportName(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"https://www.ls-x.de/media/a.pdf", "a.pdf"},
		{"https://www.ls-x.de/media/a%20b.pdf?download=1", "a b.pdf"},
		{"https://www.ls-x.de/media/nested/dir/c.pdf", "c.pdf"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, reportName(tt.url))
		})
	}
}
