package main

import (
	"context"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/theiaos/nodelink/internal/client"
	"github.com/theiaos/nodelink/internal/gate"
	"github.com/theiaos/nodelink/internal/gateway"
	"github.com/theiaos/nodelink/internal/protocol"
)

func newGatewayCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "gateway",
		Short:         "Run the gateway accepting node and operator connections",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runGateway,
	}
	cmd.Flags().String("listen", "127.0.0.1:8787", "Listen address")
	cmd.Flags().String("tls-cert", "", "TLS certificate path (enables wss)")
	cmd.Flags().String("tls-key", "", "TLS key path")
	return cmd
}

func runGateway(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	listen, _ := flags.GetString("listen")
	certPath, _ := flags.GetString("tls-cert")
	keyPath, _ := flags.GetString("tls-key")

	if (certPath == "") != (keyPath == "") {
		return fmt.Errorf("--tls-cert and --tls-key must be set together")
	}

	srv := gateway.New(gateway.CommandHandlerFunc(gatewayHandle))
	defer srv.Close()

	httpSrv := &http.Server{
		Addr:              listen,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	errChan := make(chan error, 1)
	go func() {
		if certPath != "" {
			logCertFingerprint(certPath)
			errChan <- httpSrv.ListenAndServeTLS(certPath, keyPath)
			return
		}
		errChan <- httpSrv.ListenAndServe()
	}()

	scheme := "ws"
	if certPath != "" {
		scheme = "wss"
	}
	log.Printf("[Gateway] listening on %s://%s/ws (PID: %d)", scheme, listen, os.Getpid())

	select {
	case sig := <-sigChan:
		log.Printf("[Gateway] received signal %s, shutting down...", sig)
	case err := <-errChan:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("gateway server: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	srv.Close()
	if err := httpSrv.Shutdown(ctx); err != nil {
		log.Printf("[Gateway] shutdown: %v", err)
	}
	log.Println("[Gateway] stopped")
	return nil
}

// gatewayHandle serves the invocations addressed to the gateway itself.
// Node-serviced commands never reach here: they arrive on node connections
// via Dispatch, not on the gateway handler.
func gatewayHandle(_ context.Context, conn gate.Conn, inv protocol.Invocation) (json.RawMessage, error) {
	switch inv.Command {
	case protocol.CmdTalkPTTStart, protocol.CmdTalkPTTStop, protocol.CmdTalkPTTCancel:
		log.Printf("[Gateway] %s session command %s", conn.Role, inv.Command)
		return json.RawMessage(`{"accepted":true}`), nil
	default:
		return nil, fmt.Errorf("command %s is not serviced by the gateway", inv.Command)
	}
}

// logCertFingerprint prints the serving certificate's fingerprint at
// startup so operators can compare it during the pinning flow.
func logCertFingerprint(certPath string) {
	data, err := os.ReadFile(certPath)
	if err != nil {
		return
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return
	}
	leaf, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return
	}
	log.Printf("[Gateway] certificate fingerprint: %s", client.FingerprintSHA256(leaf.Raw))
}
