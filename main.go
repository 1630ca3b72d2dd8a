package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/BlackMission/idpauth/internal/config"
	"github.com/BlackMission/idpauth/internal/domain"
	"github.com/BlackMission/idpauth/internal/event"
	"github.com/BlackMission/idpauth/internal/logger"
	"github.com/BlackMission/idpauth/internal/metrics"
	"github.com/BlackMission/idpauth/internal/tracing"
	"github.com/BlackMission/idpauth/internal/widget"
	"github.com/BlackMission/idpauth/pkg/idpauth"
)

const serviceName = "idpauth"

// app holds what every command needs once configuration is loaded.
type app struct {
	cfg      *config.Config
	log      *zap.Logger
	client   *idpauth.Client
	shutdown func(context.Context) error
}

func setup(ctx context.Context, envFiles []string) (*app, error) {
	if err := config.LoadDotEnv(envFiles...); err != nil {
		return nil, err
	}
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	log := logger.New(logger.Config{
		Env:         cfg.Log.Env,
		Level:       cfg.Log.Level,
		ServiceName: serviceName,
		Version:     cfg.App.SDKVersion,
	})

	shutdown, err := tracing.Setup(ctx, tracing.Config{
		ServiceName: serviceName,
		Version:     cfg.App.SDKVersion,
		Endpoint:    cfg.Tracing.Endpoint,
		Disabled:    cfg.Tracing.Disabled,
	})
	if err != nil {
		log.Warn("tracing disabled", zap.Error(err))
	}

	m, err := metrics.New(prometheus.NewRegistry())
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics: %w", err)
	}

	client, err := idpauth.NewFromConfig(cfg, nil, log, m)
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}

	for _, id := range client.Providers() {
		log.Debug("registered provider", logger.Provider(id))
	}

	return &app{cfg: cfg, log: log, client: client, shutdown: shutdown}, nil
}

func (a *app) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := a.client.Close(ctx); err != nil {
		a.log.Warn("channel shutdown error", zap.Error(err))
	}
	if err := a.shutdown(ctx); err != nil {
		a.log.Warn("tracing shutdown error", zap.Error(err))
	}
	a.log.Sync()
}

type credentialOutput struct {
	UID         string   `json:"uid"`
	Email       string   `json:"email,omitempty"`
	TenantID    string   `json:"tenantId,omitempty"`
	ProviderID  string   `json:"providerId"`
	Operation   string   `json:"operationType"`
	IsNewUser   bool     `json:"isNewUser"`
	ProviderIDs []string `json:"providerIds,omitempty"`
	IDToken     string   `json:"idToken,omitempty"`
}

func printCredential(uc *idpauth.UserCredential, withToken bool) error {
	out := credentialOutput{
		UID:         uc.User.UID,
		Email:       uc.User.Email,
		TenantID:    uc.User.TenantID,
		ProviderID:  uc.ProviderID,
		Operation:   string(uc.OperationType),
		IsNewUser:   uc.IsNewUser,
		ProviderIDs: uc.User.ProviderIDs,
	}
	if withToken {
		out.IDToken = uc.User.IDToken
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func main() {
	var (
		envFiles  []string
		provider  string
		redirect  bool
		showToken bool
		uid       string
		idToken   string
		eventID   string
		authType  string
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	root := &cobra.Command{
		Use:           "idpauth",
		Short:         "Sign in, link and reauthenticate with federated identity providers",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringSliceVar(&envFiles, "env-file", []string{".env"}, "dotenv files loaded before reading the environment")

	withApp := func(run func(a *app, cmd *cobra.Command) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, _ []string) error {
			a, err := setup(ctx, envFiles)
			if err != nil {
				return err
			}
			defer a.close()
			return run(a, cmd)
		}
	}

	providersCmd := &cobra.Command{
		Use:   "providers",
		Short: "List configured identity providers",
		RunE: withApp(func(a *app, _ *cobra.Command) error {
			for _, id := range a.client.Providers() {
				fmt.Println(id)
			}
			return nil
		}),
	}

	urlCmd := &cobra.Command{
		Use:   "url",
		Short: "Print the widget URL for a provider without opening it",
		RunE: withApp(func(a *app, _ *cobra.Command) error {
			p, err := a.client.Provider(provider)
			if err != nil {
				return err
			}
			t := domain.AuthEventType(authType)
			if !t.Valid() {
				return fmt.Errorf("%w: unknown auth type %q", domain.ErrInvalidConfig, authType)
			}
			if eventID == "" {
				eventID = event.NewIDGenerator().New()
			}
			u, err := widget.Build(a.client.Auth(), p, t, eventID)
			if err != nil {
				return err
			}
			fmt.Println(u)
			return nil
		}),
	}
	urlCmd.Flags().StringVar(&eventID, "event-id", "", "event id to embed (random when empty)")
	urlCmd.Flags().StringVar(&authType, "type", string(domain.SignInViaRedirect), "auth event type")

	signinCmd := &cobra.Command{
		Use:   "signin",
		Short: "Sign in with a provider",
		RunE: withApp(func(a *app, _ *cobra.Command) error {
			p, err := a.client.Provider(provider)
			if err != nil {
				return err
			}
			if redirect {
				rd, err := a.client.StartRedirect(ctx, p, domain.SignInViaRedirect, nil)
				if err != nil {
					return err
				}
				fmt.Fprintf(os.Stderr, "Open this URL to continue:\n%s\n", rd.URL)
				uc, err := rd.Complete(ctx)
				if err != nil {
					return err
				}
				return printCredential(uc, showToken)
			}
			uc, err := a.client.SignInWithPopup(ctx, p)
			if err != nil {
				return err
			}
			return printCredential(uc, showToken)
		}),
	}
	signinCmd.Flags().BoolVar(&redirect, "redirect", false, "use the redirect flow instead of a popup")

	linkCmd := &cobra.Command{
		Use:   "link",
		Short: "Link a provider identity to an existing user",
		RunE: withApp(func(a *app, _ *cobra.Command) error {
			p, err := a.client.Provider(provider)
			if err != nil {
				return err
			}
			uc, err := a.client.LinkWithPopup(ctx, &idpauth.User{UID: uid, IDToken: idToken}, p)
			if err != nil {
				return err
			}
			return printCredential(uc, showToken)
		}),
	}
	linkCmd.Flags().StringVar(&idToken, "id-token", "", "id token of the user to link to")
	linkCmd.MarkFlagRequired("id-token")

	reauthCmd := &cobra.Command{
		Use:   "reauth",
		Short: "Reauthenticate an existing user with a provider",
		RunE: withApp(func(a *app, _ *cobra.Command) error {
			p, err := a.client.Provider(provider)
			if err != nil {
				return err
			}
			uc, err := a.client.ReauthenticateWithPopup(ctx, &idpauth.User{UID: uid}, p)
			if err != nil {
				return err
			}
			return printCredential(uc, showToken)
		}),
	}

	for _, cmd := range []*cobra.Command{urlCmd, signinCmd, linkCmd, reauthCmd} {
		cmd.Flags().StringVar(&provider, "provider", "", "provider id, e.g. google.com")
		cmd.MarkFlagRequired("provider")
	}
	for _, cmd := range []*cobra.Command{signinCmd, linkCmd, reauthCmd} {
		cmd.Flags().BoolVar(&showToken, "show-token", false, "include the id token in the output")
	}
	for _, cmd := range []*cobra.Command{linkCmd, reauthCmd} {
		cmd.Flags().StringVar(&uid, "uid", "", "uid of the existing user")
		cmd.MarkFlagRequired("uid")
	}

	root.AddCommand(providersCmd, urlCmd, signinCmd, linkCmd, reauthCmd)

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
