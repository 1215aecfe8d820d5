package main

import (
	"errors"
	"time"

	"cms-service/internal/infrastructure/httpx"

	"github.com/spf13/cobra"
)

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "cmsctl",
		Short: "Command-line client for the CMS API",
		Long: `cmsctl sends requests to the CMS API through the request dispatcher.

Credentials come from --username/--password or CMS_USERNAME/CMS_PASSWORD.
When no session is cached, one is created on the first request. Set
SESSION_BACKEND=redis to keep the session between invocations.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPostRun: func(*cobra.Command, []string) {
			a.close()
		},
	}
	root.PersistentFlags().StringVarP(&a.format, "output", "o", "json", "output format: json or yaml")
	root.PersistentFlags().StringVar(&a.cfg.APIBaseURL, "api", a.cfg.APIBaseURL, "API base URL")
	root.PersistentFlags().StringVar(&a.username, "username", envOr("CMS_USERNAME", ""), "login username")
	root.PersistentFlags().StringVar(&a.password, "password", envOr("CMS_PASSWORD", ""), "login password")
	root.PersistentFlags().StringVar(&a.session, "session", envOr("CMS_SESSION", "default"), "name of the cached session")

	root.AddCommand(
		newLoginCmd(a),
		newLogoutCmd(a),
		newStatusCmd(a),
		newPostsCmd(a),
		newProfilesCmd(a),
		newImagesCmd(a),
		newDocumentsCmd(a),
	)
	return root
}

func newLoginCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Log in and cache the session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if a.username == "" || a.password == "" {
				return errors.New("--username and --password are required")
			}
			c, err := a.connect()
			if err != nil {
				return err
			}
			s, err := c.Auth.Login(cmd.Context(), a.username, a.password)
			if err != nil {
				return err
			}
			return a.print(map[string]any{"username": s.Username, "expires_at": s.ExpiresAt.Format(time.RFC3339)})
		},
	}
}

func newLogoutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Revoke and forget the cached session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := a.connect()
			if err != nil {
				return err
			}
			return c.Auth.Logout(cmd.Context())
		},
	}
}

func newStatusCmd(a *app) *cobra.Command {
	var wait time.Duration
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Check that the API is ready",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			probe := &httpx.Client{MaxElapsed: wait}
			if err := probe.WaitReady(cmd.Context(), a.cfg.APIBaseURL); err != nil {
				return err
			}
			return a.print(map[string]string{"api": a.cfg.APIBaseURL, "status": "ready"})
		},
	}
	cmd.Flags().DurationVar(&wait, "wait", 3*time.Second, "how long to keep retrying")
	return cmd
}

func newPostsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{Use: "posts", Short: "Read and delete posts"}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List posts with their media",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				c, err := a.ensureSession(cmd.Context())
				if err != nil {
					return err
				}
				posts, err := c.API.ListPosts(cmd.Context())
				if err != nil {
					return err
				}
				return a.print(posts)
			},
		},
		&cobra.Command{
			Use:   "search <query>",
			Short: "Search posts by title",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				c, err := a.ensureSession(cmd.Context())
				if err != nil {
					return err
				}
				posts, err := c.API.SearchPosts(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return a.print(posts)
			},
		},
		&cobra.Command{
			Use:   "get <id>",
			Short: "Show one post",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				c, err := a.ensureSession(cmd.Context())
				if err != nil {
					return err
				}
				p, err := c.API.GetPost(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return a.print(p)
			},
		},
		&cobra.Command{
			Use:   "delete <id>...",
			Short: "Delete one or more posts",
			Args:  cobra.MinimumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				c, err := a.ensureSession(cmd.Context())
				if err != nil {
					return err
				}
				if len(args) == 1 {
					if err := c.API.DeletePost(cmd.Context(), args[0]); err != nil {
						return err
					}
					return a.print(map[string]int64{"deleted": 1})
				}
				n, err := c.API.DeletePosts(cmd.Context(), args)
				if err != nil {
					return err
				}
				return a.print(map[string]int64{"deleted": n})
			},
		},
	)
	return cmd
}

func newProfilesCmd(a *app) *cobra.Command {
	var search string
	list := &cobra.Command{
		Use:   "list",
		Short: "List profiles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := a.ensureSession(cmd.Context())
			if err != nil {
				return err
			}
			if search != "" {
				ps, err := c.API.SearchProfiles(cmd.Context(), search)
				if err != nil {
					return err
				}
				return a.print(ps)
			}
			ps, err := c.API.ListProfiles(cmd.Context())
			if err != nil {
				return err
			}
			return a.print(ps)
		},
	}
	list.Flags().StringVar(&search, "search", "", "filter by username substring")

	get := &cobra.Command{
		Use:   "get <username>",
		Short: "Show one profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.ensureSession(cmd.Context())
			if err != nil {
				return err
			}
			p, err := c.API.GetProfile(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return a.print(p)
		},
	}

	cmd := &cobra.Command{Use: "profiles", Short: "Read profiles"}
	cmd.AddCommand(list, get)
	return cmd
}

func newImagesCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{Use: "images", Short: "Read gallery images"}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List images, newest path first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := a.ensureSession(cmd.Context())
			if err != nil {
				return err
			}
			imgs, err := c.API.ListImages(cmd.Context())
			if err != nil {
				return err
			}
			return a.print(imgs)
		},
	})
	return cmd
}

func newDocumentsCmd(a *app) *cobra.Command {
	var availableFor string
	list := &cobra.Command{
		Use:   "list",
		Short: "List documents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := a.ensureSession(cmd.Context())
			if err != nil {
				return err
			}
			if availableFor != "" {
				docs, err := c.API.AvailableDocuments(cmd.Context(), availableFor)
				if err != nil {
					return err
				}
				return a.print(docs)
			}
			docs, err := c.API.ListDocuments(cmd.Context())
			if err != nil {
				return err
			}
			return a.print(docs)
		},
	}
	list.Flags().StringVar(&availableFor, "available-for", "", "only documents not yet linked to this post")

	cmd := &cobra.Command{Use: "documents", Short: "Read documents"}
	cmd.AddCommand(list)
	return cmd
}
