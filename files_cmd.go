package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/driveconnect/driveconnect/internal/drive"
	"github.com/driveconnect/driveconnect/internal/transfer"
)

func newFilesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "files",
		Short: "Browse and transfer Drive files",
	}

	cmd.AddCommand(newFilesLsCmd())
	cmd.AddCommand(newFilesStatCmd())
	cmd.AddCommand(newFilesGetCmd())
	cmd.AddCommand(newFilesPutCmd())
	cmd.AddCommand(newFilesMkdirCmd())

	return cmd
}

func newFilesLsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ls",
		Short: "List files",
		Args:  cobra.NoArgs,
		RunE:  runFilesLs,
	}

	cmd.Flags().Int("page-size", 100, "results per page")
	cmd.Flags().String("page-token", "", "continue from a previous page")
	cmd.Flags().StringP("query", "Q", "", "Drive search query (e.g. \"name contains 'report'\")")
	cmd.Flags().String("drive", "", "shared drive ID to list")
	cmd.Flags().Bool("no-folders", false, "exclude folders")

	return cmd
}

func runFilesLs(cmd *cobra.Command, _ []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	pageSize, _ := cmd.Flags().GetInt("page-size")
	pageToken, _ := cmd.Flags().GetString("page-token")
	query, _ := cmd.Flags().GetString("query")
	driveID, _ := cmd.Flags().GetString("drive")
	noFolders, _ := cmd.Flags().GetBool("no-folders")

	list, err := a.client.ListFiles(cmd.Context(), drive.ListFilesOptions{
		PageSize:  pageSize,
		PageToken: pageToken,
		Query:     query,
		DriveID:   driveID,
		NoFolders: noFolders,
	})
	if err != nil {
		return err
	}

	if flagJSON {
		return printJSON(list)
	}

	rows := make([][]string, 0, len(list.Files))
	for _, f := range list.Files {
		size := formatSize(f.Size)
		if f.IsFolder() {
			size = "-"
		}

		rows = append(rows, []string{f.ID, size, formatTime(f.ModifiedTime), f.Name})
	}

	printTable(os.Stdout, []string{"ID", "SIZE", "MODIFIED", "NAME"}, rows)

	if list.HasMore() {
		statusf("More results available: --page-token %s\n", list.NextPageToken)
	}

	return nil
}

func newFilesStatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stat <file-id>",
		Short: "Display file metadata",
		Args:  cobra.ExactArgs(1),
		RunE:  runFilesStat,
	}
}

func runFilesStat(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	f, err := a.client.GetFile(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	if flagJSON {
		return printJSON(f)
	}

	fmt.Printf("ID:        %s\n", f.ID)
	fmt.Printf("Name:      %s\n", f.Name)
	fmt.Printf("MIME type: %s\n", f.MimeType)
	fmt.Printf("Size:      %s\n", formatSize(f.Size))
	fmt.Printf("Modified:  %s\n", formatTime(f.ModifiedTime))

	if f.MD5Checksum != "" {
		fmt.Printf("MD5:       %s\n", f.MD5Checksum)
	}

	if f.WebViewLink != "" {
		fmt.Printf("Link:      %s\n", f.WebViewLink)
	}

	return nil
}

func newFilesGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <file-id> [local-path]",
		Short: "Download a file",
		Args:  cobra.RangeArgs(1, 2),
		RunE:  runFilesGet,
	}
}

func runFilesGet(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()

	f, err := a.client.GetFile(ctx, args[0])
	if err != nil {
		return err
	}

	localPath := f.Name
	if len(args) == 2 {
		localPath = args[1]
	}

	out, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("creating %s: %w", localPath, err)
	}

	n, err := a.downloader.Fetch(ctx, transfer.FileMeta{
		ID:       f.ID,
		Name:     f.Name,
		MimeType: f.MimeType,
		Checksum: f.MD5Checksum,
	}, out)

	closeErr := out.Close()
	if err == nil {
		err = closeErr
	}

	if err != nil {
		// Leave no partial file behind.
		os.Remove(localPath)
		return err
	}

	statusf("Downloaded %s (%s)\n", localPath, formatSize(n))

	return nil
}

func newFilesPutCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "put <local-path>",
		Short: "Upload a file",
		Args:  cobra.ExactArgs(1),
		RunE:  runFilesPut,
	}

	cmd.Flags().String("parent", "", "parent folder ID")
	cmd.Flags().String("mime-type", "application/octet-stream", "content type of the upload")

	return cmd
}

func runFilesPut(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("reading %s: %w", args[0], err)
	}

	parent, _ := cmd.Flags().GetString("parent")
	mimeType, _ := cmd.Flags().GetString("mime-type")

	var parents []string
	if parent != "" {
		parents = []string{parent}
	}

	f, err := a.client.UploadFile(cmd.Context(), filepath.Base(args[0]), mimeType, parents, data)
	if err != nil {
		return err
	}

	if flagJSON {
		return printJSON(f)
	}

	statusf("Uploaded %s (id %s, %s)\n", f.Name, f.ID, formatSize(int64(len(data))))

	return nil
}

func newFilesMkdirCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mkdir <name>",
		Short: "Create a folder",
		Args:  cobra.ExactArgs(1),
		RunE:  runFilesMkdir,
	}

	cmd.Flags().String("parent", "", "parent folder ID")

	return cmd
}

func runFilesMkdir(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	parent, _ := cmd.Flags().GetString("parent")

	var parents []string
	if parent != "" {
		parents = []string{parent}
	}

	f, err := a.client.CreateFolder(cmd.Context(), args[0], parents)
	if err != nil {
		return err
	}

	if flagJSON {
		return printJSON(f)
	}

	statusf("Created folder %s (id %s)\n", f.Name, f.ID)

	return nil
}
