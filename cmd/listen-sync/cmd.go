package main

import "github.com/urfave/cli/v3"

func loginCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "login",
		Usage:  "Authorize with Spotify and store the credential",
		Action: r.Login,
	}
}

func logoutCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "logout",
		Usage:  "Delete the stored credential",
		Action: r.Logout,
	}
}

func syncCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "sync",
		Usage: "Fetch recently played tracks, store new plays and enrich new tracks",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "initial",
				Usage: "Run as a first sync",
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Print the run summary as JSON",
			},
		},
		Action: r.Sync,
	}
}

func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the HTTP API",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "addr",
				Usage: "Listen address, overrides server.addr",
			},
		},
		Action: r.Serve,
	}
}

func skipCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "skip",
		Usage: "Print whether a stored play was skipped",
		Arguments: []cli.Argument{
			&cli.StringArg{
				Name: "play-id",
			},
		},
		Action: r.Skip,
	}
}

func moodsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "moods",
		Usage: "Group enriched tracks by audio features",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "k",
				Usage: "Number of groups",
				Value: 3,
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Print groups as JSON",
			},
		},
		Action: r.Moods,
	}
}
