package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	jwttoken "enrollment/internal/jwt_token"
	"enrollment/internal/platform/config"
	id "enrollment/pkg/domain"
	"enrollment/pkg/requestcontext"
)

type tokenOutput struct {
	Token     string `json:"token"`
	AdminID   string `json:"admin_id"`
	Role      string `json:"role"`
	ExpiresIn string `json:"expires_in"`
}

func newTokenCmd(opts *options) *cobra.Command {
	var (
		adminID string
		role    string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Sign an admin bearer token with the configured key",
		Long: `Signs a token for an existing admin. The server still checks the admin
directory on every request, so a token for an unknown or deactivated admin is refused.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			parsed, err := id.ParseAdminID(adminID)
			if err != nil {
				return fmt.Errorf("invalid --admin-id: %w", err)
			}
			r := requestcontext.Role(role)
			if !r.IsAdmin() {
				return fmt.Errorf("invalid --role %q: must be admin or superadmin", role)
			}

			cfg := config.FromEnv()
			if ttl <= 0 {
				ttl = cfg.Auth.TokenTTL
			}
			svc := jwttoken.NewJWTService(cfg.Auth.JWTSigningKey, cfg.Auth.Issuer, cfg.Auth.Audience, ttl)
			token, err := svc.GenerateAdminToken(cmd.Context(), parsed, r)
			if err != nil {
				return fmt.Errorf("sign token: %w", err)
			}

			out := tokenOutput{Token: token, AdminID: parsed.String(), Role: role, ExpiresIn: ttl.String()}
			return opts.output(cmd.OutOrStdout(), out, func(w io.Writer) {
				fmt.Fprintln(w, token)
			})
		},
	}
	cmd.Flags().StringVar(&adminID, "admin-id", "", "admin id (UUID)")
	cmd.Flags().StringVar(&role, "role", string(requestcontext.RoleAdmin), "admin or superadmin")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (defaults to TOKEN_TTL)")
	_ = cmd.MarkFlagRequired("admin-id")
	return cmd
}
