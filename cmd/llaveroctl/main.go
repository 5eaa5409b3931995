// llaveroctl es la CLI administrativa: opera directamente sobre el storage
// configurado (clients, scopes, claves de firma y revocación de tokens).
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/dropDatabas3/llavero/internal/config"
	"github.com/dropDatabas3/llavero/internal/domain/repository"
	oauthsvc "github.com/dropDatabas3/llavero/internal/http/services/oauth"
	jwtx "github.com/dropDatabas3/llavero/internal/jwt"
	"github.com/dropDatabas3/llavero/internal/security/password"
	tokens "github.com/dropDatabas3/llavero/internal/security/token"
	"github.com/dropDatabas3/llavero/internal/store"
	_ "github.com/dropDatabas3/llavero/internal/store/adapters/dal"
	"github.com/dropDatabas3/llavero/internal/validation"
)

func main() {
	_ = godotenv.Load()

	var (
		configPath string
		outJSON    bool

		cfg *config.Config
		dal *store.DAL
	)

	root := &cobra.Command{
		Use:           "llaveroctl",
		Short:         "CLI admin de llavero (clients, scopes, claves, tokens)",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			path := configPath
			if _, err := os.Stat(path); err != nil {
				path = ""
			}
			var err error
			cfg, err = config.Load(path)
			if err != nil {
				return fmt.Errorf("config: %w", err)
			}
			dal, err = store.New(cmd.Context(), store.Config{
				Driver: cfg.Storage.Driver,
				DSN:    cfg.Storage.DSN,
			})
			if err != nil {
				return fmt.Errorf("storage (%s): %w", cfg.Storage.Driver, err)
			}
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if dal != nil {
				dal.Close()
			}
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", envOr("CONFIG_PATH", "config.yaml"), "ruta del config YAML")
	root.PersistentFlags().BoolVar(&outJSON, "json", false, "salida en JSON")

	printOut := func(v any, text func()) {
		if outJSON {
			b, _ := json.MarshalIndent(v, "", "  ")
			fmt.Println(string(b))
			return
		}
		text()
	}

	// ───── clients ─────
	clientCmd := &cobra.Command{Use: "client", Short: "Operaciones sobre OAuth clients"}

	var (
		ccID       string
		ccName     string
		ccType     string
		ccSecret   string
		ccURIs     []string
		ccScopes   []string
		ccGrants   []string
		ccPKCE     bool
		ccConsent  bool
		ccTokenTTL int
	)
	clientCreateCmd := &cobra.Command{
		Use:   "create",
		Short: "Crear un client",
		RunE: func(cmd *cobra.Command, args []string) error {
			if ccID == "" {
				return fmt.Errorf("--client-id es requerido")
			}
			if ccType != repository.ClientTypePublic && ccType != repository.ClientTypeConfidential {
				return fmt.Errorf("--type debe ser public|confidential")
			}

			var secretHash *string
			generated := ""
			if ccType == repository.ClientTypeConfidential {
				secret := ccSecret
				if secret == "" {
					var err error
					secret, err = tokens.GenerateOpaqueToken(32)
					if err != nil {
						return err
					}
					generated = secret
				}
				h, err := password.Hash(password.Default, secret)
				if err != nil {
					return fmt.Errorf("no se pudo hashear el secret: %w", err)
				}
				secretHash = &h
			} else if ccSecret != "" {
				return fmt.Errorf("un client público no lleva secret")
			}

			for _, s := range ccScopes {
				if !validation.ValidScopeName(s) {
					return fmt.Errorf("scope inválido: %q", s)
				}
			}
			if len(ccGrants) == 0 {
				ccGrants = []string{"authorization_code", "refresh_token"}
			}

			c, err := dal.Clients.Create(cmd.Context(), repository.ClientInput{
				ClientID:       ccID,
				Name:           ccName,
				Type:           ccType,
				SecretHash:     secretHash,
				RedirectURIs:   ccURIs,
				AllowedScopes:  ccScopes,
				GrantTypes:     ccGrants,
				ResponseTypes:  []string{"code"},
				RequirePKCE:    ccPKCE,
				RequireConsent: ccConsent,
				AccessTokenTTL: ccTokenTTL,
			})
			if err != nil {
				return err
			}
			printOut(map[string]any{"client_id": c.ClientID, "type": c.Type, "client_secret": generated}, func() {
				fmt.Printf("client %s creado (%s)\n", c.ClientID, c.Type)
				if generated != "" {
					fmt.Printf("client_secret: %s\n", generated)
					fmt.Println("guardalo ahora: no se puede recuperar después")
				}
			})
			return nil
		},
	}
	clientCreateCmd.Flags().StringVar(&ccID, "client-id", "", "client_id público")
	clientCreateCmd.Flags().StringVar(&ccName, "name", "", "nombre descriptivo")
	clientCreateCmd.Flags().StringVar(&ccType, "type", repository.ClientTypeConfidential, "public|confidential")
	clientCreateCmd.Flags().StringVar(&ccSecret, "secret", "", "secret del client (si vacío se genera)")
	clientCreateCmd.Flags().StringSliceVar(&ccURIs, "redirect-uri", nil, "redirect URI (repetible)")
	clientCreateCmd.Flags().StringSliceVar(&ccScopes, "scope", nil, "scope permitido (repetible)")
	clientCreateCmd.Flags().StringSliceVar(&ccGrants, "grant", nil, "grant type permitido (repetible)")
	clientCreateCmd.Flags().BoolVar(&ccPKCE, "require-pkce", false, "exigir PKCE en authorization_code")
	clientCreateCmd.Flags().BoolVar(&ccConsent, "require-consent", false, "exigir consentimiento del usuario")
	clientCreateCmd.Flags().IntVar(&ccTokenTTL, "access-ttl", 0, "TTL del access token en segundos (0 = default)")

	clientListCmd := &cobra.Command{
		Use:   "list",
		Short: "Listar clients",
		RunE: func(cmd *cobra.Command, args []string) error {
			list, err := dal.Clients.List(cmd.Context())
			if err != nil {
				return err
			}
			printOut(list, func() {
				for _, c := range list {
					state := "active"
					if !c.Active {
						state = "inactive"
					}
					fmt.Printf("%-28s %-13s %-8s scopes=%s\n", c.ClientID, c.Type, state, strings.Join(c.AllowedScopes, ","))
				}
			})
			return nil
		},
	}

	clientDeactivateCmd := &cobra.Command{
		Use:   "deactivate <client-id>",
		Short: "Desactivar un client",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := dal.Clients.Deactivate(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Printf("client %s desactivado\n", args[0])
			return nil
		},
	}

	clientCmd.AddCommand(clientCreateCmd, clientListCmd, clientDeactivateCmd)

	// ───── scopes ─────
	scopeCmd := &cobra.Command{Use: "scope", Short: "Operaciones sobre el registro de scopes"}

	var (
		scDesc   string
		scPublic bool
	)
	scopeCreateCmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Crear o actualizar un scope",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			if !validation.ValidScopeName(name) {
				return fmt.Errorf("nombre de scope inválido: %q", name)
			}
			s, err := dal.Scopes.Upsert(cmd.Context(), repository.ScopeInput{
				Name:        name,
				Description: scDesc,
				Public:      scPublic,
				Active:      true,
			})
			if err != nil {
				return err
			}
			printOut(s, func() { fmt.Printf("scope %s listo (public=%v)\n", s.Name, s.Public) })
			return nil
		},
	}
	scopeCreateCmd.Flags().StringVar(&scDesc, "description", "", "descripción del scope")
	scopeCreateCmd.Flags().BoolVar(&scPublic, "public", false, "otorgable a clients públicos")

	scopeListCmd := &cobra.Command{
		Use:   "list",
		Short: "Listar scopes",
		RunE: func(cmd *cobra.Command, args []string) error {
			list, err := dal.Scopes.List(cmd.Context())
			if err != nil {
				return err
			}
			printOut(list, func() {
				for _, s := range list {
					fmt.Printf("%-24s public=%-5v active=%-5v %s\n", s.Name, s.Public, s.Active, s.Description)
				}
			})
			return nil
		},
	}

	scopeCmd.AddCommand(scopeCreateCmd, scopeListCmd)

	// ───── keys ─────
	keysCmd := &cobra.Command{Use: "keys", Short: "Claves de firma"}

	keysRotateCmd := &cobra.Command{
		Use:   "rotate",
		Short: "Rotar la clave de firma activa (la anterior queda en gracia)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.JWT.KeysFile == "" {
				return fmt.Errorf("jwt.keys_file no configurado: nada que rotar")
			}
			ks := jwtx.NewKeystore(cmd.Context(), jwtx.NewFSSigningKeyStore(cfg.JWT.KeysFile))
			if err := ks.EnsureBootstrap(); err != nil {
				return err
			}
			kid, err := ks.Rotate()
			if err != nil {
				return err
			}
			printOut(map[string]string{"kid": kid}, func() { fmt.Printf("clave activa: %s\n", kid) })
			return nil
		},
	}

	keysListCmd := &cobra.Command{
		Use:   "list",
		Short: "Listar claves públicas (JWKS)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.JWT.KeysFile == "" {
				return fmt.Errorf("jwt.keys_file no configurado")
			}
			ks := jwtx.NewKeystore(cmd.Context(), jwtx.NewFSSigningKeyStore(cfg.JWT.KeysFile))
			b, err := ks.JWKSJSON()
			if err != nil {
				return err
			}
			fmt.Println(string(b))
			return nil
		},
	}

	keysCmd.AddCommand(keysRotateCmd, keysListCmd)

	// ───── tokens ─────
	tokenCmd := &cobra.Command{Use: "token", Short: "Operaciones sobre tokens emitidos"}

	tokenRevokeCmd := &cobra.Command{
		Use:   "revoke <jwt>",
		Short: "Revocar un token por su JWT crudo",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hash := tokens.SHA256Base64URL(args[0])
			rec, err := dal.Tokens.GetByHash(cmd.Context(), hash)
			if err != nil {
				return fmt.Errorf("token no encontrado: %w", err)
			}
			if err := dal.Tokens.Revoke(cmd.Context(), rec.ID); err != nil {
				return err
			}
			if err := dal.Blacklist.Add(cmd.Context(), &repository.BlacklistEntry{
				JTI:       rec.JTI,
				TokenType: rec.TokenType,
				ExpiresAt: rec.ExpiresAt,
			}); err != nil {
				return err
			}
			printOut(map[string]string{"jti": rec.JTI, "type": rec.TokenType}, func() {
				fmt.Printf("token %s (%s) revocado\n", rec.JTI, rec.TokenType)
			})
			return nil
		},
	}

	tokenPurgeCmd := &cobra.Command{
		Use:   "purge",
		Short: "Borrar registros de tokens vencidos",
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := dal.Tokens.DeleteExpired(cmd.Context(), time.Now().UTC())
			if err != nil {
				return err
			}
			fmt.Printf("%d registros borrados\n", n)
			return nil
		},
	}

	tokenCmd.AddCommand(tokenRevokeCmd, tokenPurgeCmd)

	// ───── consents ─────
	consentCmd := &cobra.Command{Use: "consent", Short: "Consentimientos persistidos por usuario"}

	consentListCmd := &cobra.Command{
		Use:   "list <user-id>",
		Short: "Listar consentimientos vigentes de un usuario",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc := oauthsvc.NewConsentService(oauthsvc.ConsentDeps{DAL: dal})
			list, err := svc.List(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printOut(list, func() {
				for _, c := range list {
					fmt.Printf("%-28s scopes=%s otorgado=%s\n",
						c.ClientID, strings.Join(c.Scopes, ","), c.GrantedAt.Format(time.RFC3339))
				}
			})
			return nil
		},
	}

	consentRevokeCmd := &cobra.Command{
		Use:   "revoke <user-id> <client-id>",
		Short: "Revocar el consentimiento de un usuario para un client",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc := oauthsvc.NewConsentService(oauthsvc.ConsentDeps{DAL: dal})
			if err := svc.Revoke(cmd.Context(), args[0], args[1]); err != nil {
				return err
			}
			fmt.Printf("consentimiento de %s para %s revocado\n", args[0], args[1])
			return nil
		},
	}

	consentCmd.AddCommand(consentListCmd, consentRevokeCmd)

	root.AddCommand(clientCmd, scopeCmd, keysCmd, tokenCmd, consentCmd)

	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
