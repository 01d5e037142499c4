// skinreportd conditions raw frames from a capacitive touch-sensor matrix
// into normalized intensity fields. It reads the controller's serial bridge,
// runs the calibration/conditioning pipeline once per frame, records
// diagnostics to sqlite and serves the monitoring HTTP interface.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/touch.report/internal/config"
	"github.com/banshee-data/touch.report/internal/db"
	"github.com/banshee-data/touch.report/internal/monitor"
	"github.com/banshee-data/touch.report/internal/serialmux"
	"github.com/banshee-data/touch.report/internal/skin"
)

var (
	devMode     = flag.Bool("dev", false, "Run in dev mode (replay fixtures instead of opening a serial port)")
	listen      = flag.String("listen", ":8080", "Listen address for the monitoring HTTP server")
	serialPath  = flag.String("port", "/dev/ttySC1", "Serial port of the skin controller bridge")
	baudRate    = flag.Int("baud", 115200, "Serial baud rate")
	dbFile      = flag.String("db", "skin_data.db", "Path to the sqlite database")
	tuningFile  = flag.String("tuning", "", "Optional JSON tuning config (same schema as /api/skin/params)")
	fixtureFile = flag.String("fixture", "fixtures.txt", "Frame fixture file replayed in dev mode")
	matrixRows  = flag.Int("rows", skin.DefaultRows, "Sensor matrix row count")
	matrixCols  = flag.Int("cols", skin.DefaultCols, "Sensor matrix column count")
	recordRaw   = flag.Bool("record", false, "Record raw frames for offline replay")
)

// fixtureInterval paces dev-mode replay at roughly the controller's 50 Hz.
const fixtureInterval = 20 * time.Millisecond

// statsInterval is how often cycle statistics are logged.
const statsInterval = 10 * time.Second

// recordBuffer sizes the channel between the pipeline hooks and the sqlite
// recorder so a slow disk never stalls a conditioning cycle.
const recordBuffer = 256

// cycleRecord carries one emitted snapshot plus its source frame out of the
// pipeline's cycle lock and over to the recorder goroutine.
type cycleRecord struct {
	snap  skin.FieldSnapshot
	frame skin.Frame
}

// handleFrameLine parses one serial line and runs it through the pipeline.
// lastFrame, when non-nil, receives the parsed frame before the cycle runs so
// the OnField hook can pair the snapshot with its source frame. Returns the
// emitted snapshot, or nil when the line was malformed or the cycle produced
// no output.
func handleFrameLine(pl *skin.Pipeline, stats *monitor.CycleStats, line string, lastFrame *skin.Frame) *skin.FieldSnapshot {
	frame, err := skin.ParseFrameLine(line, pl.Cells())
	if err != nil {
		stats.AddDropped()
		log.Printf("dropping frame: %v", err)
		return nil
	}
	if lastFrame != nil {
		*lastFrame = frame
	}
	stats.AddCycle()
	snap := pl.Ingest(frame)
	if snap != nil {
		stats.AddField(snap.Quiet)
	}
	return snap
}

func main() {
	flag.Parse()

	if *listen == "" {
		log.Fatal("Listen address is required")
	}
	if *matrixRows < 1 || *matrixCols < 1 {
		log.Fatalf("invalid matrix geometry %dx%d", *matrixRows, *matrixCols)
	}

	params := skin.DefaultParams()
	if *tuningFile != "" {
		cfg, err := config.LoadTuningConfig(*tuningFile)
		if err != nil {
			log.Fatalf("failed to load tuning config: %v", err)
		}
		params = cfg.Apply(params)
		log.Printf("applied tuning config from %s", *tuningFile)
	}

	pipeline := skin.NewPipeline(*matrixRows, *matrixCols, params)
	stats := monitor.NewCycleStats()
	broker := monitor.NewFieldBroker()

	var m serialmux.SerialMuxInterface
	if *devMode {
		data, err := os.ReadFile(*fixtureFile)
		if err != nil {
			log.Fatalf("failed to open fixtures file: %v", err)
		}
		m = serialmux.NewMockSerialMux(data, fixtureInterval)
	} else {
		var err error
		m, err = serialmux.NewRealSerialMux(*serialPath, serialmux.PortOptions{BaudRate: *baudRate})
		if err != nil {
			log.Fatalf("failed to open serial bridge: %v", err)
		}
	}
	defer m.Close()

	database, err := db.NewDB(*dbFile)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	sessionID, err := database.BeginSession(*matrixRows, *matrixCols)
	if err != nil {
		log.Fatalf("failed to begin capture session: %v", err)
	}
	log.Printf("capture session %s (%dx%d matrix)", sessionID, *matrixRows, *matrixCols)

	// The pipeline hooks run inside the cycle lock, so they only hand work to
	// channels. The recorder goroutine owns all sqlite writes.
	recordChan := make(chan cycleRecord, recordBuffer)
	calibratedChan := make(chan int, 4)

	var lastFrame skin.Frame
	pipeline.OnField(func(snap skin.FieldSnapshot) {
		broker.Publish(snap)
		select {
		case recordChan <- cycleRecord{snap: snap, frame: lastFrame}:
		default:
			// recorder backlog full; this cycle's diagnostics are lost
		}
	})
	pipeline.OnCalibrated(func(durationFrames int) {
		select {
		case calibratedChan <- durationFrames:
		default:
		}
	})

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// run the monitor routine to manage IO on the serial port
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := m.Monitor(ctx); err != nil && err != context.Canceled {
			log.Printf("failed to monitor serial port: %v", err)
		}
		log.Print("monitor routine terminated")
	}()

	// put the controller into raw streaming mode once the monitor is up
	if err := m.Initialize(); err != nil {
		log.Printf("failed to initialize skin bridge: %v", err)
	}

	// subscribe to frame lines and feed them through the pipeline
	wg.Add(1)
	go func() {
		defer wg.Done()
		id, c := m.Subscribe()
		defer m.Unsubscribe(id)
		for {
			select {
			case line, ok := <-c:
				if !ok {
					log.Printf("subscribe routine terminated: channel closed")
					return
				}
				handleFrameLine(pipeline, stats, line, &lastFrame)
			case <-ctx.Done():
				log.Printf("subscribe routine terminated")
				return
			}
		}
	}()

	// recorder routine: drains diagnostics into sqlite off the hot path
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case rec := <-recordChan:
				stat := db.CycleStat{
					SessionID:    sessionID,
					Cycle:        rec.snap.Cycle,
					VMin:         rec.snap.VMin,
					VMax:         rec.snap.VMax,
					PeakCell:     rec.snap.PeakCell,
					Quiet:        rec.snap.Quiet,
					ThresholdMin: rec.snap.Thresholds.Min,
					ThresholdMax: rec.snap.Thresholds.Max,
				}
				if err := database.RecordCycleStat(stat); err != nil {
					log.Printf("failed to record cycle stat: %v", err)
				}
				if *recordRaw && rec.frame != nil {
					if err := database.RecordRawFrame(sessionID, rec.snap.Cycle, skin.EncodeFrameBlob(rec.frame)); err != nil {
						log.Printf("failed to record raw frame: %v", err)
					}
				}
			case frames := <-calibratedChan:
				if err := database.RecordCalibrationCompleted(sessionID); err != nil {
					log.Printf("failed to record calibration completion: %v", err)
				}
				log.Printf("calibration complete after %d frames", frames)
			case <-ctx.Done():
				log.Printf("recorder routine terminated")
				return
			}
		}
	}()

	// periodic stats logging
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(statsInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				stats.LogStats()
			case <-ctx.Done():
				return
			}
		}
	}()

	// monitoring HTTP server
	webserver := monitor.NewWebServer(monitor.WebServerConfig{
		Address:   *listen,
		Pipeline:  pipeline,
		Stats:     stats,
		Broker:    broker,
		DB:        database,
		SessionID: sessionID,
		Debug:     []monitor.DebugRouter{m, database},
	})
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := webserver.Start(ctx); err != nil {
			log.Printf("web server error: %v", err)
		}
	}()

	// kick off the initial baseline calibration; frames ingested before it
	// finishes produce no output
	if started := pipeline.BeginCalibration(); started {
		if _, err := database.RecordCalibrationRequested(sessionID, pipeline.Params().CalibrationDurationFrames); err != nil {
			log.Printf("failed to record calibration request: %v", err)
		}
		log.Printf("initial calibration started (%d frames)", pipeline.Params().CalibrationDurationFrames)
	}

	wg.Wait()
	log.Printf("Graceful shutdown complete")
}
