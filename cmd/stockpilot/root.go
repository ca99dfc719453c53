package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/jrsteele09/stockpilot/backend"
	"github.com/jrsteele09/stockpilot/internal/config"
	"github.com/jrsteele09/stockpilot/inventory"
	"github.com/jrsteele09/stockpilot/session"
	"github.com/jrsteele09/stockpilot/tokenstore"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// app holds what the commands share. The session is built lazily so
// commands that never talk to the backend (mock-backend) skip token loading.
type app struct {
	in     *os.File
	reader *bufio.Reader
	out    io.Writer
	errOut io.Writer

	cfgFile  string
	logLevel string

	cfg     config.Config
	store   tokenstore.Store
	session *session.Manager
}

func newApp(in *os.File, out, errOut io.Writer) *app {
	return &app{in: in, reader: bufio.NewReader(in), out: out, errOut: errOut}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "stockpilot",
		Short: "StockPilot inventory client",
		Long:  "stockpilot signs in to a StockPilot backend and manages products, orders, stock alerts and forecasts.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.loadConfig()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVarP(&a.cfgFile, "config", "c", "", "YAML config file (environment variables still win)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "override the configured log level")

	root.AddCommand(
		newLoginCmd(a),
		newSignupCmd(a),
		newLogoutCmd(a),
		newWhoamiCmd(a),
		newRefreshCmd(a),
		newForgotPasswordCmd(a),
		newResetPasswordCmd(a),
		newProductsCmd(a),
		newInventoryCmd(a),
		newOrdersCmd(a),
		newAlertsCmd(a),
		newForecastCmd(a),
		newImportCmd(a),
		newAnalyticsCmd(a),
		newChatCmd(a),
		newGetCmd(a),
		newMockBackendCmd(a),
	)
	return root
}

func (a *app) loadConfig() error {
	cfg, err := config.Load(a.cfgFile)
	if err != nil {
		return err
	}
	a.cfg = cfg

	level := a.logLevel
	if level == "" {
		level = cfg.GetLogLevel()
	}
	setupLogging(level, a.errOut)
	return nil
}

func setupLogging(level string, w io.Writer) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen})
}

// startSession opens the token store and restores any persisted session.
func (a *app) startSession(ctx context.Context) (*session.Manager, error) {
	if a.session != nil {
		return a.session, nil
	}
	store, err := tokenstore.Open(a.cfg)
	if err != nil {
		return nil, err
	}
	a.store = store

	nav := session.NavigatorFunc(func(path string) {
		fmt.Fprintf(a.errOut, "Session expired, run `stockpilot login` (%s)\n", path)
	})
	m := session.New(a.cfg, store, backend.New(a.cfg, nil), session.WithNavigator(nav))
	if err := m.Init(ctx); err != nil {
		return nil, err
	}
	a.session = m
	return m, nil
}

func (a *app) inventory(ctx context.Context) (*inventory.Client, error) {
	m, err := a.startSession(ctx)
	if err != nil {
		return nil, err
	}
	return inventory.NewClient(m.Client()), nil
}

func (a *app) close() error {
	if closer, ok := a.store.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
