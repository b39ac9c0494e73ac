package serialbridge

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// AttachDebugRoutes attaches localhost debugging endpoints to mux. The
// direct-send endpoint deliberately bypasses the command queue: it writes to
// the link and reads back whatever arrives, serialised against the
// dispatcher only by the connection's exclusive lock.
func (b *Bridge) AttachDebugRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/debug/serial/state", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(b.State()); err != nil {
			http.Error(w, "failed to encode state", http.StatusInternalServerError)
		}
	})

	mux.HandleFunc("/debug/serial/send", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		command := strings.TrimSpace(r.FormValue("command"))
		if command == "" {
			http.Error(w, "missing command", http.StatusBadRequest)
			return
		}

		var reply []byte
		err := b.conn.Do(func(p Porter) error {
			if _, werr := p.Write([]byte(command + "\n")); werr != nil {
				return werr
			}
			var rerr error
			reply, rerr = readAvailable(p)
			return rerr
		})
		if err != nil {
			http.Error(w, fmt.Sprintf("failed to write command: %v", err), http.StatusInternalServerError)
			return
		}

		io.WriteString(w, fmt.Sprintf("wrote %q, read %d bytes: %q\n", command, len(reply), reply))
	})
}
