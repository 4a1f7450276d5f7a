package server

import (
	"embed"
	"io/fs"
	"net/http"
	"os"
)

//go:embed static
var embeddedStatic embed.FS

// StaticHandler serves files from dir when it is an existing directory and
// falls back to the built-in chat page otherwise.
func StaticHandler(dir string) http.Handler {
	if dir != "" {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			return http.FileServer(http.Dir(dir))
		}
	}

	sub, err := fs.Sub(embeddedStatic, "static")
	if err != nil {
		panic(err) // the embedded tree is fixed at build time
	}
	return http.FileServer(http.FS(sub))
}
