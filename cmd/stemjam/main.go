package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/stemjam/stemjam/internal/config"
	"github.com/stemjam/stemjam/internal/engine"
	"github.com/stemjam/stemjam/internal/jam"
	"github.com/stemjam/stemjam/internal/output"
	"github.com/stemjam/stemjam/internal/stem"
	"github.com/stemjam/stemjam/internal/store"
	"github.com/stemjam/stemjam/internal/stream"
	"github.com/stemjam/stemjam/internal/stretch"
	"github.com/stemjam/stemjam/internal/web"
)

func main() {
	cfg := config.Load()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log.Println("stemjam starting up...")

	db, err := store.Open(cfg.DBPath)
	if err != nil {
		log.Printf("store unavailable, sessions will not be saved: %v", err)
		db = nil
	} else {
		defer db.Close()
	}

	var proc stretch.Processor
	if rb, err := stretch.NewRubberband(""); err != nil {
		log.Printf("rubberband not found, tempo changes will shift pitch: %v", err)
		proc = stretch.NativeOnly{}
	} else {
		proc = rb
	}

	eng := engine.New(stem.NewRegistry(), proc, engine.Config{
		PrecountBeats: cfg.PrecountBeats,
		Metronome:     cfg.Metronome,
	})
	go eng.Run(ctx)

	broadcaster := stream.NewBroadcaster(0)
	go broadcaster.Run(ctx, eng.Frames())

	if cfg.LocalOutput {
		if dev, err := output.Open(broadcaster); err != nil {
			log.Printf("local audio device unavailable: %v", err)
		} else {
			defer dev.Close()
		}
	}

	webrtcHandler := stream.NewWebRTCHandler(broadcaster)

	mux := http.NewServeMux()

	// Jam roles
	var guestRef guestHolder
	switch cfg.JamMode {
	case "host":
		hub := jam.NewHub()
		host := jam.NewHost(eng, hub, jam.HostConfig{
			Code:        cfg.JamCode,
			Heartbeat:   cfg.Heartbeat,
			WaitSeconds: int(cfg.HostWait.Seconds()),
		})
		hub.SetHello(host.Snapshot)
		go host.Run(ctx)
		defer hub.Close()
		mux.Handle("/ws", hub)
		log.Printf("hosting jam session %s on /ws", host.Code())
	case "guest":
		if cfg.JamHostURL == "" {
			log.Fatal("guest mode needs STEMJAM_JAM_HOST")
		}
		go runGuest(ctx, eng, db, cfg, &guestRef)
	}

	restoreSession(ctx, eng, db, cfg)
	if db != nil {
		go saveSessionLoop(ctx, eng, db)
	}

	// Web UI
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write(web.IndexHTML)
	})

	// Monitor streams
	mux.Handle("/stream", stream.NewHTTPHandler(broadcaster, cfg.StreamBitrate, "stemjam monitor"))
	mux.Handle("/offer", webrtcHandler)

	// API
	mux.HandleFunc("/api/status", func(w http.ResponseWriter, r *http.Request) {
		resp := struct {
			engine.Status
			Tracks    []string         `json:"tracks"`
			Listeners int              `json:"listeners"`
			Peers     int              `json:"peers"`
			Jam       *jam.GuestStatus `json:"jam,omitempty"`
		}{
			Status:    eng.Status(),
			Tracks:    listTracks(cfg.TrackDir),
			Listeners: broadcaster.ListenerCount(),
			Peers:     webrtcHandler.PeerCount(),
		}
		if g := guestRef.get(); g != nil {
			st := g.Status()
			resp.Jam = &st
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Access-Control-Allow-Origin", "*")
		json.NewEncoder(w).Encode(resp)
	})

	mux.HandleFunc("/api/load", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Track string `json:"track"`
		}
		if !decodePost(w, r, &req) {
			return
		}
		if err := loadTrack(r.Context(), eng, db, cfg.TrackDir, req.Track); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		writeOK(w)
	})

	mux.HandleFunc("/api/play", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "POST required", http.StatusMethodNotAllowed)
			return
		}
		eng.Play()
		writeOK(w)
	})
	mux.HandleFunc("/api/pause", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "POST required", http.StatusMethodNotAllowed)
			return
		}
		eng.Pause()
		writeOK(w)
	})
	mux.HandleFunc("/api/stop", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "POST required", http.StatusMethodNotAllowed)
			return
		}
		eng.Stop()
		writeOK(w)
	})

	mux.HandleFunc("/api/seek", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Position float64 `json:"position"`
		}
		if !decodePost(w, r, &req) {
			return
		}
		eng.Seek(req.Position)
		writeOK(w)
	})

	mux.HandleFunc("/api/tempo", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Ratio float64 `json:"ratio"`
			BPM   float64 `json:"bpm"`
		}
		if !decodePost(w, r, &req) {
			return
		}
		ratio := req.Ratio
		if req.BPM > 0 {
			if orig := eng.Status().OriginalBPM; orig > 0 {
				ratio = req.BPM / orig
			}
		}
		if ratio <= 0 {
			http.Error(w, "ratio or bpm required", http.StatusBadRequest)
			return
		}
		eng.SetTempo(ratio)
		writeOK(w)
	})

	mux.HandleFunc("/api/pitch", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Semitones float64 `json:"semitones"`
		}
		if !decodePost(w, r, &req) {
			return
		}
		eng.SetPitch(req.Semitones)
		writeOK(w)
	})

	mux.HandleFunc("/api/metronome", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Enabled bool `json:"enabled"`
		}
		if !decodePost(w, r, &req) {
			return
		}
		eng.SetMetronome(req.Enabled)
		writeOK(w)
	})

	mux.HandleFunc("/api/stem/volume", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Name   string  `json:"name"`
			Volume float64 `json:"volume"`
		}
		if !decodePost(w, r, &req) {
			return
		}
		eng.SetVolume(req.Name, req.Volume)
		writeOK(w)
	})
	mux.HandleFunc("/api/stem/pan", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Name string  `json:"name"`
			Pan  float64 `json:"pan"`
		}
		if !decodePost(w, r, &req) {
			return
		}
		eng.SetPan(req.Name, req.Pan)
		writeOK(w)
	})
	mux.HandleFunc("/api/stem/mute", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Name string `json:"name"`
		}
		if !decodePost(w, r, &req) {
			return
		}
		muted := eng.ToggleMute(req.Name)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"ok": true, "muted": muted})
	})
	mux.HandleFunc("/api/stem/solo", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Name string `json:"name"`
		}
		if !decodePost(w, r, &req) {
			return
		}
		solo := eng.ToggleSolo(req.Name)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"ok": true, "solo": solo})
	})

	addr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		log.Println("Shutting down...")
		if db != nil {
			db.SaveSnapshot(store.SnapshotOf(eng.Status()))
		}
		server.Close()
	}()

	log.Printf("stemjam live on %s", addr)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatalf("HTTP server error: %v", err)
	}
}

// guestHolder lets status handlers see the current guest across redials.
type guestHolder struct {
	mu sync.Mutex
	g  *jam.Guest
}

func (h *guestHolder) set(g *jam.Guest) {
	h.mu.Lock()
	h.g = g
	h.mu.Unlock()
}

func (h *guestHolder) get() *jam.Guest {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.g
}

// runGuest dials the host and replays its session, redialing after the host
// drops so a returning host is picked straight back up.
func runGuest(ctx context.Context, eng *engine.Engine, db *store.Store, cfg config.Config, ref *guestHolder) {
	for ctx.Err() == nil {
		tr, err := jam.Dial(ctx, cfg.JamHostURL)
		if err != nil {
			log.Printf("jam: dial %s: %v (retrying)", cfg.JamHostURL, err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(3 * time.Second):
			}
			continue
		}

		guest := jam.NewGuest(eng, tr, jam.GuestConfig{
			DriftThreshold: cfg.DriftThreshold,
			HostWait:       cfg.HostWait,
			Loader: func(ctx context.Context, p jam.LoadTrackPayload) error {
				return loadTrack(ctx, eng, db, cfg.TrackDir, p.Title)
			},
		})
		ref.set(guest)

		if err := guest.Run(ctx); err != nil && err != jam.ErrHostGone {
			tr.Close()
			return
		}
		tr.Close()
		log.Printf("jam: session with %s over, redialing", cfg.JamHostURL)
	}
}

// restoreSession reloads the last track and mix if the snapshot is fresh.
func restoreSession(ctx context.Context, eng *engine.Engine, db *store.Store, cfg config.Config) {
	if db == nil {
		return
	}
	snap, ok := db.LoadSnapshot()
	if !ok || snap.Track == "" {
		return
	}
	if err := loadTrack(ctx, eng, db, cfg.TrackDir, snap.Track); err != nil {
		log.Printf("cannot resume %q: %v", snap.Track, err)
		return
	}
	st := eng.Status()
	if st.OriginalBPM > 0 && snap.CurrentBPM > 0 {
		eng.SetTempo(snap.CurrentBPM / st.OriginalBPM)
	}
	eng.SetPitch(snap.Semitones)
	eng.SetMetronome(snap.Metronome)
	for _, mix := range snap.Stems {
		eng.SetVolume(mix.Name, mix.Volume)
		eng.SetPan(mix.Name, mix.Pan)
		if mix.Muted {
			eng.ToggleMute(mix.Name)
		}
	}
	eng.Seek(snap.Position)
	log.Printf("resumed %q at %.1fs", snap.Track, snap.Position)
}

// saveSessionLoop snapshots the session every few seconds.
func saveSessionLoop(ctx context.Context, eng *engine.Engine, db *store.Store) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if st := eng.Status(); st.Loaded {
				if err := db.SaveSnapshot(store.SnapshotOf(st)); err != nil {
					log.Printf("save session: %v", err)
				}
			}
		}
	}
}

func decodePost(w http.ResponseWriter, r *http.Request, v any) bool {
	if r.Method != http.MethodPost {
		http.Error(w, "POST required", http.StatusMethodNotAllowed)
		return false
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return false
	}
	return true
}

func writeOK(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"ok": true})
}
