package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"os/exec"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/ssh/terminal"

	"github.com/theiaos/nodelink/internal/client"
	"github.com/theiaos/nodelink/internal/constants"
	"github.com/theiaos/nodelink/internal/device"
	"github.com/theiaos/nodelink/internal/endpoint"
	"github.com/theiaos/nodelink/internal/handshake"
	"github.com/theiaos/nodelink/internal/pinstore"
	"github.com/theiaos/nodelink/internal/protocol"
	"github.com/theiaos/nodelink/internal/trust"
	nlversion "github.com/theiaos/nodelink/internal/version"
)

func newConnectCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "connect <host> <port>",
		Short:         "Connect to a gateway as a node (default) or operator",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runConnect,
	}
	cmd.Flags().Bool("operator", false, "Connect with the operator role instead of node")
	cmd.Flags().Bool("tls", false, "Require TLS for this manually configured endpoint")
	cmd.Flags().Bool("debug", false, "Advertise debug build commands")
	cmd.Flags().String("name", "", "Display name for this installation")
	cmd.Flags().String("invoke", "", "Operator mode: command to invoke after connecting")
	cmd.Flags().String("params", "", "Operator mode: JSON params for --invoke")
	registerFeatureFlags(cmd)
	return cmd
}

func runConnect(cmd *cobra.Command, args []string) error {
	out := newOutputFormatter(cmd)
	flags := cmd.Flags()

	port, err := strconv.Atoi(args[1])
	if err != nil {
		return out.Error("Invalid port", err)
	}
	ep, err := endpoint.Manual(args[0], port)
	if err != nil {
		return out.Error("Invalid endpoint", err)
	}

	store, err := openStore(cmd)
	if err != nil {
		return out.Error("Failed to open pin store", err)
	}
	defer store.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if name, _ := flags.GetString("name"); name != "" {
		if err := store.SetDisplayName(ctx, name); err != nil {
			return out.Error("Failed to store display name", err)
		}
	}
	stored, err := store.Identity(ctx)
	if err != nil {
		return out.Error("Failed to load installation identity", err)
	}

	debug, _ := flags.GetBool("debug")
	features, err := featuresFromFlags(cmd, device.ClassHost)
	if err != nil {
		return out.Error("Invalid feature flags", err)
	}
	manualTLS, _ := flags.GetBool("tls")

	connector := &client.Connector{
		Pins: store,
		Features: device.SnapshotterFunc(func() device.FeatureState {
			return features
		}),
		Build:     localBuild{debug: debug},
		Identity:  handshake.Identity{InstanceID: stored.InstanceID, DisplayName: stored.DisplayName},
		ManualTLS: func() bool { return manualTLS },
	}

	role := protocol.RoleNode
	if operator, _ := flags.GetBool("operator"); operator {
		role = protocol.RoleOperator
	}

	conn, err := connector.Connect(ctx, ep, role)
	if client.IsPinConfirmationRequired(err) {
		var confirm client.PinConfirmationRequiredError
		errors.As(err, &confirm)
		if err := confirmPin(ctx, store, confirm); err != nil {
			return out.Error("Certificate not trusted", err)
		}
		conn, err = connector.Connect(ctx, ep, role)
	}
	if err != nil {
		switch {
		case trust.IsUntrustedCertificate(err):
			return out.Error("Gateway presented a certificate that does not match the stored pin", err)
		case trust.IsTLSRequired(err):
			return out.Error("Endpoint requires TLS but the connection could not be secured", err)
		default:
			return out.Error("Failed to connect", err)
		}
	}
	defer conn.Close()

	if role == protocol.RoleOperator {
		return runOperator(ctx, cmd, out, conn)
	}
	return runNode(ctx, conn, features)
}

// localBuild supplies this binary's build metadata to the envelope builder.
type localBuild struct {
	debug bool
}

func (b localBuild) BuildInfo() device.BuildInfo { return localBuildInfo(b.debug) }

// confirmPin runs the explicit trust flow: show the presented fingerprint,
// ask the operator, and persist the pin only on an explicit yes. Without a
// terminal there is no one to ask, so the connection fails.
func confirmPin(ctx context.Context, store pinstore.Store, confirm client.PinConfirmationRequiredError) error {
	if !terminal.IsTerminal(int(os.Stdin.Fd())) {
		return fmt.Errorf("endpoint %s has no stored pin and stdin is not a terminal", confirm.StableID)
	}

	fmt.Printf("The gateway at %s presented an unknown certificate:\n", confirm.StableID)
	fmt.Printf("  SHA-256: %s\n", confirm.Fingerprint)
	fmt.Print("Trust this certificate and pin it? [y/N]: ")

	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return fmt.Errorf("read confirmation: %w", err)
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
	default:
		return fmt.Errorf("certificate rejected by operator")
	}

	if err := store.SaveFingerprint(ctx, confirm.StableID, confirm.Fingerprint); err != nil {
		return fmt.Errorf("save pin: %w", err)
	}
	fmt.Println("Pin stored.")
	return nil
}

// runOperator optionally fires a single invocation, prints the result and
// returns.
func runOperator(ctx context.Context, cmd *cobra.Command, out *OutputFormatter, conn *client.Conn) error {
	invoke, _ := cmd.Flags().GetString("invoke")
	if invoke == "" {
		return out.Success("Connected as operator", map[string]interface{}{
			"scopes": conn.Envelope().Scopes,
		})
	}

	params, _ := cmd.Flags().GetString("params")
	var raw []byte
	if params != "" {
		if !json.Valid([]byte(params)) {
			return out.Error("Invalid --params payload", fmt.Errorf("not valid JSON"))
		}
		raw = []byte(params)
	}

	invokeCtx, cancel := context.WithTimeout(ctx, constants.ClientRequestTimeout)
	defer cancel()
	res, err := conn.Invoke(invokeCtx, protocol.Command(invoke), raw)
	if err != nil {
		return out.Error("Invocation failed", err)
	}
	if res.Error != nil {
		return out.Error(fmt.Sprintf("Gateway rejected %s (%s)", invoke, res.Error.Code),
			fmt.Errorf("%s", res.Error.Message))
	}
	return out.Print(map[string]interface{}{
		"command": invoke,
		"ok":      res.OK,
		"payload": json.RawMessage(res.Payload),
	})
}

// runNode serves gateway invocations until interrupted.
func runNode(ctx context.Context, conn *client.Conn, features device.FeatureState) error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	serveCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		sig := <-sigChan
		log.Printf("[Node] received signal %s, disconnecting...", sig)
		cancel()
		conn.Close()
	}()

	log.Printf("[Node] connected, serving %d commands", len(conn.Envelope().Commands))
	for {
		inv, err := conn.Next(serveCtx)
		if err != nil {
			if serveCtx.Err() != nil {
				return nil
			}
			return fmt.Errorf("connection lost: %w", err)
		}
		payload, invErr := serveInvocation(serveCtx, inv, features)
		res := protocol.Result{ID: inv.ID, OK: invErr == nil, Payload: payload}
		if invErr != nil {
			res.Error = &protocol.InvokeError{Code: protocol.ErrCodeInternal, Message: invErr.Error()}
		}
		if err := conn.Respond(res); err != nil {
			if serveCtx.Err() != nil {
				return nil
			}
			return fmt.Errorf("send result: %w", err)
		}
	}
}

var nodeStartTime = time.Now()

// serveInvocation executes one gateway command locally. Only the commands a
// host node can meaningfully serve from a CLI are implemented; the rest
// answer with an error result on their own invocation.
func serveInvocation(ctx context.Context, inv protocol.Invocation, features device.FeatureState) (json.RawMessage, error) {
	switch inv.Command {
	case protocol.CmdDeviceInfo:
		build := localBuildInfo(false)
		return json.Marshal(map[string]interface{}{
			"version":  nlversion.String(),
			"platform": build.Platform,
			"class":    features.Class,
		})
	case protocol.CmdDeviceStatus:
		return json.Marshal(map[string]interface{}{
			"uptimeSec": int(time.Since(nodeStartTime).Seconds()),
		})
	case protocol.CmdSystemNotify:
		var params struct {
			Title string `json:"title"`
			Body  string `json:"body"`
		}
		if len(inv.Params) > 0 {
			if err := json.Unmarshal(inv.Params, &params); err != nil {
				return nil, fmt.Errorf("decode params: %w", err)
			}
		}
		log.Printf("[Node] notify: %s %s", params.Title, params.Body)
		return json.RawMessage(`{"delivered":true}`), nil
	case protocol.CmdSystemWhich:
		var params struct {
			Name string `json:"name"`
		}
		if err := json.Unmarshal(inv.Params, &params); err != nil {
			return nil, fmt.Errorf("decode params: %w", err)
		}
		path, err := exec.LookPath(params.Name)
		if err != nil {
			return json.Marshal(map[string]interface{}{"found": false})
		}
		return json.Marshal(map[string]interface{}{"found": true, "path": path})
	case protocol.CmdSystemRun:
		var params struct {
			Command string   `json:"command"`
			Args    []string `json:"args"`
		}
		if err := json.Unmarshal(inv.Params, &params); err != nil {
			return nil, fmt.Errorf("decode params: %w", err)
		}
		if params.Command == "" {
			return nil, fmt.Errorf("command required")
		}
		runCtx, cancel := context.WithTimeout(ctx, constants.NodeExecTimeout)
		defer cancel()
		output, err := exec.CommandContext(runCtx, params.Command, params.Args...).CombinedOutput()
		result := map[string]interface{}{"output": string(output)}
		if err != nil {
			result["error"] = err.Error()
		}
		return json.Marshal(result)
	default:
		return nil, fmt.Errorf("command %s is not implemented on this node", inv.Command)
	}
}
