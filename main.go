package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fyne.io/fyne/v2"
	"github.com/docopt/docopt-go"
	"github.com/golang/glog"

	"MapBoard/internal/client"
	"MapBoard/internal/config"
	"MapBoard/internal/loop"
	mbnet "MapBoard/internal/net"
	"MapBoard/internal/proto"
	"MapBoard/internal/relay"
	"MapBoard/internal/state"
	"MapBoard/internal/ui"
)

const (
	MapBoardVersion = "0.1.0"
	localRelayURL   = "ws://127.0.0.1:8888/ws"
)

func main() {
	usage := `MapBoard shared map annotation.

Usage:
    mapboard relay [--addr=<addr>] [--config=<path>] [--advertise]
    mapboard client [<url>] [--name=<name>] [--color=<hex>] [--context=<ctx>]
        [--config=<path>] [--discover] [--window]
    mapboard -h | --help
    mapboard --version

Options:
    -h --help          Show this screen.
    --version          Show version.
    --addr=<addr>      Relay listen address [default: :8888].
    --config=<path>    JSON settings file.
    --advertise        Announce the relay on the local network over mDNS.
    --name=<name>      Display name shown to other participants.
    --color=<hex>      Drawing color as #rrggbb.
    --context=<ctx>    Workspace to join after connecting.
    --discover         Find a relay on the local network instead of <url>.
    --window           Open the map viewer.`

	opts, err := docopt.ParseArgs(usage, os.Args[1:], MapBoardVersion)
	if err != nil {
		panic(err)
	}

	// glog registers its flags on the default set
	flag.Set("logtostderr", "true")
	flag.CommandLine.Parse(nil)
	defer glog.Flush()

	cfg := config.Empty()
	if path, _ := opts.String("--config"); path != "" {
		cfg, err = config.LoadConfig(path)
		if err != nil {
			glog.Exitf("[main] %s\n", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if relay_, _ := opts.Bool("relay"); relay_ {
		addr, _ := opts.String("--addr")
		advertise, _ := opts.Bool("--advertise")
		cfg.Override(addr, "", "", "", "", advertise)
		err = runRelay(ctx, cfg)
	} else if client_, _ := opts.Bool("client"); client_ {
		url, _ := opts.String("<url>")
		name, _ := opts.String("--name")
		color, _ := opts.String("--color")
		workspace, _ := opts.String("--context")
		cfg.Override("", url, name, color, workspace, false)
		if err = cfg.Validate(); err == nil {
			discover, _ := opts.Bool("--discover")
			window, _ := opts.Bool("--window")
			err = runClient(ctx, cfg, discover, window)
		}
	}
	if err != nil {
		glog.Errorf("[main] %s\n", err)
		glog.Flush()
		os.Exit(1)
	}
}

func runRelay(ctx context.Context, cfg *config.Config) error {
	hub := relay.NewHub(state.NewStore(cfg.GetMaxClicks()), cfg.GetSendBuffer())
	go hub.Run(ctx)

	server := &http.Server{
		Addr:    cfg.GetAddr(),
		Handler: relay.NewServer(ctx, hub).Handler(),
	}
	listener, err := net.Listen("tcp", server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", server.Addr, err)
	}
	port := listener.Addr().(*net.TCPAddr).Port
	glog.Infof("[relay] listening on %s, share %s\n", listener.Addr(), mbnet.ShareURL(port))

	if cfg.GetAdvertise() {
		mdnsServer, err := mbnet.Advertise(port)
		if err != nil {
			glog.Warningf("[mdns] %s\n", err)
		} else {
			defer mdnsServer.Shutdown()
		}
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	glog.Infof("[relay] stopped\n")
	return nil
}

func relayAddress(ctx context.Context, cfg *config.Config, discover bool) (string, error) {
	if url := cfg.GetRelayURL(); url != "" && !discover {
		return url, nil
	}
	if discover {
		return mbnet.Discover(ctx, cfg.GetDiscoverTimeout())
	}
	return localRelayURL, nil
}

func runClient(ctx context.Context, cfg *config.Config, discover bool, window bool) error {
	url, err := relayAddress(ctx, cfg, discover)
	if err != nil {
		return err
	}
	glog.Infof("[client] relay %s\n", url)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	l := loop.New()
	go l.Run(ctx)

	var board *ui.Board
	var surface client.Surface = client.NewMemorySurface(true)
	if window {
		board = ui.NewBoard()
		surface = board
	}

	tr := mbnet.NewTransport(ctx, url, l, cfg.TransportSettings())
	c := client.New(l, surface, tr, cfg.ClientOptions())

	var status func(string)
	setStatus := func(text string) {
		glog.Infof("[client] %s\n", text)
		if status != nil {
			status(text)
		}
	}

	tr.OnEvent(func(env proto.Envelope) {
		if err := c.Handle(env); err != nil {
			glog.Warningf("[client] %s: %s\n", env.Event, err)
		}
	})
	joined := false
	tr.OnConnect(func(connected bool) {
		if !connected {
			setStatus("Disconnected, retrying...")
			return
		}
		setStatus("Connected to " + url)
		if joined {
			return
		}
		joined = true
		if name := cfg.GetName(); name != "" {
			c.Presence().SetName(name)
		}
		if color := cfg.GetColor(); color != "" {
			if err := c.Presence().SetColor(color); err != nil {
				glog.Warningf("[client] %s\n", err)
			}
			if board != nil {
				board.SetColor(color)
			}
		}
		if workspace := cfg.GetContext(); workspace != "" {
			c.SetContext(workspace)
		}
	})
	defer tr.Close()
	start := func() {
		tr.Start()
		go func() {
			<-tr.Done()
			if err := tr.Err(); err != nil {
				setStatus(err.Error())
			}
			if !window {
				cancel()
			}
		}()
	}

	if !window {
		start()
		<-ctx.Done()
		return tr.Err()
	}

	post := func(fn func()) {
		if !l.Post(fn) {
			glog.V(2).Infof("[client] loop stopped\n")
		}
	}
	board.On = ui.Handlers{
		Click: func(p state.LatLng) {
			post(func() {
				if err := c.RecordClick(p); err != nil {
					glog.Warningf("[client] %s\n", err)
				}
			})
		},
		Cursor:    func(p state.LatLng) { post(func() { c.Presence().MoveCursor(p) }) },
		ViewMoved: func() { post(c.Presence().ViewMoved) },
		GestureStart: func(t state.ShapeType) {
			post(func() { c.StartGesture(t, board.Sketch) })
		},
		GestureCancel: func() { post(c.CancelGesture) },
		Shape: func(s state.Shape) {
			post(func() {
				if _, err := c.Create(s); err != nil {
					glog.V(2).Infof("[client] create: %s\n", err)
				}
			})
		},
		Select: func(id string) {
			post(func() {
				if id == "" {
					c.StopEdit()
					return
				}
				if err := c.StartEdit(id); err != nil {
					glog.Warningf("[client] %s\n", err)
				}
			})
		},
		Reshape: func(id string, s state.Shape) {
			post(func() {
				if err := c.Reshape(id, s); err != nil {
					glog.Warningf("[client] %s\n", err)
				}
			})
		},
		ToolChanged: func(t ui.Tool) { post(func() { c.Presence().SetTool(t.String()) }) },
	}
	actions := ui.Actions{
		Undo: func() { post(func() { c.Undo() }) },
		Redo: func() { post(func() { c.Redo() }) },
		Delete: func() {
			post(func() {
				if id := c.Editing(); id != "" {
					c.Delete(id)
				}
			})
		},
		ShareView: func() { post(c.Presence().SyncView) },
		Export: func() {
			post(func() {
				snap := c.Snapshot()
				path := fmt.Sprintf("mapboard-%s.pdf", time.Now().Format("20060102-150405"))
				go func() {
					if err := ui.ExportPDF(path, snap); err != nil {
						setStatus("Export failed: " + err.Error())
						return
					}
					setStatus("Exported " + path)
				}()
			})
		},
		Color: func(hex string) {
			post(func() {
				if err := c.Presence().SetColor(hex); err != nil {
					glog.Warningf("[client] %s\n", err)
				}
			})
		},
	}

	ui.RunApp("MapBoard "+url, board, actions, func(w *ui.Window) {
		// status is only assigned here, before the transport starts
		status = w.SetStatus
		start()
		go func() {
			<-ctx.Done()
			fyne.Do(w.Close)
		}()
	})
	return tr.Err()
}
