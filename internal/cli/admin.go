package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"enrollment/internal/admin/models"
	adminservice "enrollment/internal/admin/service"
	adminstore "enrollment/internal/admin/store"
	"enrollment/pkg/requestcontext"
)

func newAdminCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Manage back-office admins",
	}
	cmd.AddCommand(newAdminAddCmd(opts))
	return cmd
}

func newAdminAddCmd(opts *options) *cobra.Command {
	req := &models.CreateAdminRequest{}
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Register an admin (bootstraps the first superadmin)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := requestcontext.WithActor(cmd.Context(), requestcontext.ActorCLI)
			e, err := connect(ctx, false)
			if err != nil {
				return err
			}
			defer e.close()

			svc := adminservice.New(adminstore.NewPostgres(e.db.DB()), adminservice.WithLogger(e.log))
			created, err := svc.CreateAdmin(ctx, req)
			if err != nil {
				return fmt.Errorf("create admin: %w", err)
			}
			return opts.output(cmd.OutOrStdout(), created, func(w io.Writer) {
				fmt.Fprintf(w, "Created %s %s (%s)\n", created.Role, created.Email, created.ID)
				fmt.Fprintf(w, "Run: enrollctl token --admin-id %s --role %s\n", created.ID, created.Role)
			})
		},
	}
	cmd.Flags().StringVar(&req.Email, "email", "", "admin email")
	cmd.Flags().StringVar(&req.Name, "name", "", "display name")
	cmd.Flags().StringVar(&req.Role, "role", string(requestcontext.RoleAdmin), "admin or superadmin")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}
