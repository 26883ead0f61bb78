package main

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/ptt/forumsync/forum"
)

var (
	okColor   = color.New(color.FgGreen)
	warnColor = color.New(color.FgYellow)
	errColor  = color.New(color.FgRed)
	dimColor  = color.New(color.Faint)
)

func rootCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:           "syncctl",
		Short:         "Control a forumsync daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&addr, "addr", "127.0.0.1:8080", "daemon HTTP address")

	client := func() *apiClient { return newAPIClient(addr) }
	cmd.AddCommand(threadCmd(client))
	cmd.AddCommand(forumCmd(client))
	cmd.AddCommand(bookmarksCmd(client))
	cmd.AddCommand(showCmd(client))
	cmd.AddCommand(healthCmd())
	return cmd
}

func idArg(args []string) (int, error) {
	id, err := strconv.Atoi(args[0])
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id: %q", args[0])
	}
	return id, nil
}

func pageForm(page int) url.Values {
	form := url.Values{}
	if page > 0 {
		form.Set("page", strconv.Itoa(page))
	}
	return form
}

func statusLabel(status string) string {
	switch status {
	case "synced":
		return okColor.Sprint("SYNCED")
	case "cancelled":
		return warnColor.Sprint("CANCELLED")
	default:
		return errColor.Sprint("PAGE ERROR")
	}
}

func threadCmd(client func() *apiClient) *cobra.Command {
	var page, perPage, user int

	cmd := &cobra.Command{
		Use:   "thread <id>",
		Short: "Sync one page of a thread",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := idArg(args)
			if err != nil {
				return err
			}
			form := pageForm(page)
			if perPage > 0 {
				form.Set("perpage", strconv.Itoa(perPage))
			}
			if cmd.Flags().Changed("user") {
				form.Set("userid", strconv.Itoa(user))
			}

			res, err := client().SyncThread(cmd.Context(), id, form)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s thread %v\n", statusLabel(res.Status), id)
			if res.Message != "" {
				fmt.Fprintf(out, "  %s\n", res.Message)
			}
			if res.Thread != nil {
				printThread(out, res.Thread)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&page, "page", 1, "page to sync")
	cmd.Flags().IntVar(&perPage, "per-page", 0, "posts per page (daemon default when 0)")
	cmd.Flags().IntVar(&user, "user", 0, "forum user id the page is viewed as")
	return cmd
}

func printListing(out io.Writer, what string, res *listingResult) {
	fmt.Fprintf(out, "%s %v page %v\n", statusLabel(res.Status), what, res.Page)
	if res.Message != "" {
		fmt.Fprintf(out, "  %s\n", res.Message)
		return
	}
	fmt.Fprintf(out, "  threads:   %v\n", len(res.Threads))
	if len(res.Subforums) > 0 {
		fmt.Fprintf(out, "  subforums: %v\n", len(res.Subforums))
	}
}

func forumCmd(client func() *apiClient) *cobra.Command {
	var page int

	cmd := &cobra.Command{
		Use:   "forum <id>",
		Short: "Sync one page of a forum listing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := idArg(args)
			if err != nil {
				return err
			}
			res, err := client().SyncForum(cmd.Context(), id, pageForm(page))
			if err != nil {
				return err
			}
			printListing(cmd.OutOrStdout(), fmt.Sprintf("forum %v", id), res)
			return nil
		},
	}
	cmd.Flags().IntVar(&page, "page", 1, "listing page to sync")
	return cmd
}

func bookmarksCmd(client func() *apiClient) *cobra.Command {
	var page int

	cmd := &cobra.Command{
		Use:   "bookmarks",
		Short: "Sync one page of the bookmarked threads",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := client().SyncBookmarks(cmd.Context(), pageForm(page))
			if err != nil {
				return err
			}
			printListing(cmd.OutOrStdout(), "bookmarks", res)
			return nil
		},
	}
	cmd.Flags().IntVar(&page, "page", 1, "listing page to sync")
	return cmd
}

func showCmd(client func() *apiClient) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a stored thread",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := idArg(args)
			if err != nil {
				return err
			}
			info, err := client().Thread(cmd.Context(), id)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			printThread(out, info.Thread)
			fmt.Fprintf(out, "  pages:     %v (first unread %v)\n", info.Pages, info.FirstUnreadPage)
			return nil
		},
	}
}

func printThread(out io.Writer, t *forum.Thread) {
	title := dimColor.Sprint("(untitled)")
	if t.Title != nil {
		title = *t.Title
	}
	fmt.Fprintf(out, "  %v %s", t.ID, title)
	if t.Locked != nil && *t.Locked {
		fmt.Fprint(out, warnColor.Sprint(" [locked]"))
	}
	if t.Archived != nil && *t.Archived {
		fmt.Fprint(out, dimColor.Sprint(" [archived]"))
	}
	if t.Bookmarked != nil && *t.Bookmarked != forum.NotBookmarked {
		fmt.Fprint(out, okColor.Sprintf(" [bookmark %v]", int(*t.Bookmarked)))
	}
	fmt.Fprintln(out)
	if t.PostCount != nil {
		fmt.Fprintf(out, "  posts:     %v\n", *t.PostCount)
	}
	if t.UnreadCount != nil {
		fmt.Fprintf(out, "  unread:    %v\n", *t.UnreadCount)
	}
	if t.ForumID != nil {
		fmt.Fprintf(out, "  forum:     %v\n", *t.ForumID)
	}
}

func healthCmd() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "health <grpc-address>",
		Short: "Query the daemon's gRPC health service",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			conn, err := grpc.DialContext(ctx, args[0], grpc.WithInsecure(), grpc.WithBlock())
			if err != nil {
				return fmt.Errorf("dial %v: %w", args[0], err)
			}
			defer conn.Close()

			res, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{})
			if err != nil {
				return err
			}
			label := errColor.Sprint(res.Status.String())
			if res.Status == healthpb.HealthCheckResponse_SERVING {
				label = okColor.Sprint(res.Status.String())
			}
			fmt.Fprintln(cmd.OutOrStdout(), label)
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "dial and call timeout")
	return cmd
}
