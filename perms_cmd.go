package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/driveconnect/driveconnect/internal/drive"
)

func newPermsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "perms",
		Short: "Manage file permissions",
	}

	cmd.AddCommand(newPermsLsCmd())
	cmd.AddCommand(newPermsAddCmd())
	cmd.AddCommand(newPermsUpdateCmd())
	cmd.AddCommand(newPermsRmCmd())

	return cmd
}

func newPermsLsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ls <file-id>",
		Short: "List grants on a file",
		Args:  cobra.ExactArgs(1),
		RunE:  runPermsLs,
	}
}

func runPermsLs(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	perms, err := a.client.ListPermissions(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	if flagJSON {
		return printJSON(perms)
	}

	rows := make([][]string, 0, len(perms))
	for _, p := range perms {
		grantee := p.EmailAddress
		if grantee == "" {
			grantee = p.Domain
		}

		if grantee == "" {
			grantee = "-"
		}

		rows = append(rows, []string{p.ID, p.Role, p.Type, grantee})
	}

	printTable(os.Stdout, []string{"ID", "ROLE", "TYPE", "GRANTEE"}, rows)

	return nil
}

func newPermsAddCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add <file-id>",
		Short: "Grant access to a file",
		Args:  cobra.ExactArgs(1),
		RunE:  runPermsAdd,
	}

	cmd.Flags().String("email", "", "grantee email address")
	cmd.Flags().String("domain", "", "grantee domain")
	cmd.Flags().String("role", "reader", "role to grant (reader, commenter, writer)")
	cmd.Flags().Bool("notify", false, "send a notification email to the grantee")

	return cmd
}

func runPermsAdd(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	email, _ := cmd.Flags().GetString("email")
	domain, _ := cmd.Flags().GetString("domain")
	role, _ := cmd.Flags().GetString("role")
	notify, _ := cmd.Flags().GetBool("notify")

	perm := drive.Permission{Role: role}

	switch {
	case email != "":
		perm.Type = "user"
		perm.EmailAddress = email
	case domain != "":
		perm.Type = "domain"
		perm.Domain = domain
	default:
		return cmd.Help()
	}

	out, err := a.client.CreatePermission(cmd.Context(), args[0], perm, notify)
	if err != nil {
		return err
	}

	statusf("Granted %s to %s (permission %s)\n", out.Role, email+domain, out.ID)

	return nil
}

func newPermsUpdateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "update <file-id> <permission-id>",
		Short: "Change the role on a grant",
		Args:  cobra.ExactArgs(2),
		RunE:  runPermsUpdate,
	}

	cmd.Flags().String("role", "", "new role")

	return cmd
}

func runPermsUpdate(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	role, _ := cmd.Flags().GetString("role")
	if role == "" {
		return cmd.Help()
	}

	out, err := a.client.UpdatePermission(cmd.Context(), args[0], args[1], role)
	if err != nil {
		return err
	}

	statusf("Permission %s is now %s\n", out.ID, out.Role)

	return nil
}

func newPermsRmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <file-id> <permission-id>",
		Short: "Revoke a grant",
		Args:  cobra.ExactArgs(2),
		RunE:  runPermsRm,
	}
}

func runPermsRm(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.client.DeletePermission(cmd.Context(), args[0], args[1]); err != nil {
		return err
	}

	statusf("Revoked permission %s\n", args[1])

	return nil
}
