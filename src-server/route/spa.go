package route

import (
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"confdesk/src-server/utils"
)

// SPA serves the organizer web client. Unknown paths fall back to
// index.html so client-side routing works on reload.
func SPA(muxer *http.ServeMux, as *utils.AppState) {
	files := http.FS(os.DirFS(as.Config.GetStaticWebClientDir()))
	index, err := files.Open("index.html")
	if err != nil {
		slog.Error("can't open index.html", "error", err)
		return
	}
	index.Close()

	serveIndex := func(w http.ResponseWriter, r *http.Request) {
		indexFile, err := files.Open("index.html")
		if err != nil {
			writeError(w, r, err)
			return
		}
		defer indexFile.Close()
		stat, err := indexFile.Stat()
		if err != nil {
			writeError(w, r, err)
			return
		}
		http.ServeContent(w, r, stat.Name(), stat.ModTime(), indexFile)
	}

	muxer.HandleFunc("GET /{filepath...}", func(w http.ResponseWriter, r *http.Request) {
		filepath := filepath.Clean(r.PathValue("filepath"))
		switch filepath {
		case ".":
			serveIndex(w, r)
			return
		case "404":
			filepath = "404.html"
		}

		file, err := files.Open(filepath)
		if err != nil {
			serveIndex(w, r)
			return
		}
		defer file.Close()

		stat, err := file.Stat()
		if err != nil || stat.IsDir() {
			serveIndex(w, r)
			return
		}

		http.ServeContent(w, r, stat.Name(), stat.ModTime(), file)
	})
}
