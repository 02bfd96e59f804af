package main

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"syscall"
	"time"

	"eol_station/internal/config"
	"eol_station/internal/handlers"
	"eol_station/internal/hardware"
	"eol_station/internal/industrial"
	"eol_station/internal/logger"
	"eol_station/internal/mes"
	"eol_station/internal/models"
	"eol_station/internal/repository"
	"eol_station/internal/repository/db"
	"eol_station/internal/server"
	"eol_station/internal/service"

	"github.com/spf13/viper"
)

func main() {
	// init logger
	log := logger.Get(logger.InfoLevel)

	// load config.yml
	if err := loadConfig(); err != nil {
		log.Fatalw("error reading config", "err", err)
	}

	testCfg, err := config.LoadTestConfiguration(viper.GetViper())
	if err != nil {
		log.Fatalw("invalid test configuration", "err", err)
	}
	hwCfg, err := config.LoadHardwareConfig(viper.GetViper())
	if err != nil {
		log.Fatalw("invalid hardware configuration", "err", err)
	}
	mesSettings, err := config.LoadMESSettings(viper.GetViper())
	if err != nil {
		log.Fatalw("invalid mes settings", "err", err)
	}

	// open DB
	sqlDB, err := openDB(log)
	if err != nil {
		log.Fatalw("failed to init sqlite", "err", err)
	}
	defer func() {
		if cerr := sqlDB.Close(); cerr != nil {
			log.Fatalw("failed to close sqlite", "err", cerr)
		}
	}()

	// hardware links: the simulated rig is the in-tree implementation
	dio := hardware.NewSimDigitalIO()
	stageSafeSensorLevels(dio, hwCfg.DigitalIO)
	links := service.FacadeLinks{
		Robot:     hardware.NewSimRobot(),
		MCU:       hardware.NewSimMCU(),
		Power:     hardware.NewSimPower(),
		LoadCell:  hardware.NewSimLoadCell(),
		DigitalIO: dio,
	}

	// wire dependencies
	repos := repository.NewRepository(sqlDB)
	manager := industrial.NewSystemManager(dio, hwCfg, operatorAlertSink(log), log)
	services := service.NewService(service.Deps{
		Links:    links,
		Repos:    repos,
		Manager:  manager,
		Progress: &progressLogger{log: log},
		Notifier: mes.NewClient(mesSettings, log),
		TestCfg:  testCfg,
		HWCfg:    hwCfg,
		Log:      log,
	})
	apiHandler := handlers.NewHandler(services, log)

	// context for background goroutines
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// bring the station into idle: lamp actor running, green on
	if err := manager.InitializeSystem(ctx); err != nil {
		log.Fatalw("failed to initialize station", "err", err)
	}

	// start HTTP server
	srv := &server.Server{}
	runHTTPServer(srv, viper.GetString("port"), apiHandler, log)

	// graceful shutdown
	waitForShutdown(cancel, srv, services, manager, log)
}

func loadConfig() error {
	viper.AddConfigPath("configs") // configs/config.yml
	viper.SetConfigName("config")
	return viper.ReadInConfig()
}

// openDB initializes the SQLite database using configuration.
func openDB(log *logger.Logger) (*sql.DB, error) {
	dbPath := viper.GetString("db.path")
	if dbPath == "" {
		log.Infow("db.path not set in config; using default file", "default", "station.db")
		dbPath = "station.db"
	}
	return db.InitDB(dbPath)
}

// stageSafeSensorLevels sets the simulated inputs so the rig idles safe:
// door closed (B contact low), clamp engaged and chain ready (A contacts high).
func stageSafeSensorLevels(dio *hardware.SimDigitalIO, ch config.DigitalChannels) {
	dio.SetInput(ch.DoorSensor.Pin, false)
	dio.SetInput(ch.ClampSensor.Pin, true)
	dio.SetInput(ch.ChainSensor.Pin, true)
}

// operatorAlertSink surfaces safety alerts; without a local GUI they go to the
// structured log in both languages.
func operatorAlertSink(log *logger.Logger) industrial.AlertSink {
	return func(title, message string, level models.SafetyAlertLevel) {
		log.Warnw("operator_alert", "title", title, "message", message, "level", level)
	}
}

// progressLogger is the headless ProgressSink: one log line per temperature
// per finished cycle.
type progressLogger struct {
	log *logger.Logger
}

func (p *progressLogger) AddCycleResult(cycle, totalCycles int, temperature, stroke, force float64, heatingTime, coolingTime time.Duration, status string) {
	p.log.Infow("cycle_progress",
		"cycle", cycle,
		"total_cycles", totalCycles,
		"temperature", temperature,
		"stroke", stroke,
		"force", force,
		"heating_time", heatingTime.String(),
		"cooling_time", coolingTime.String(),
		"status", status,
	)
}

// runHTTPServer runs the HTTP server in a separate goroutine.
func runHTTPServer(srv *server.Server, port string, handler *handlers.Handler, log *logger.Logger) {
	go func() {
		if port == "" {
			port = "8080"
		}
		if err := srv.Run(port, handler.InitRoutes()); err != nil {
			log.Fatalw("error starting server", "err", err)
		}
	}()
}

// waitForShutdown listens for termination signals and performs graceful shutdown.
func waitForShutdown(cancel context.CancelFunc, srv *server.Server, services *service.Service, manager *industrial.SystemManager, log *logger.Logger) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Infow("shutting down station...")

	// stop background goroutines
	cancel()

	// allow in-flight requests to complete
	ctx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalw("server forced to shutdown", "err", err)
	}

	// release hardware: lamps off, outputs reset, links disconnected
	manager.ShutdownSystem(ctx)
	if err := services.Shutdown(ctx); err != nil {
		log.Errorw("hardware shutdown incomplete", "err", err)
	}
}
