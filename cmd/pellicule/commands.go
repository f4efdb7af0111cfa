package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"pellicule/internal/bootstrap"
	"pellicule/internal/config"
	"pellicule/internal/models"
	"pellicule/internal/realtime"
	"pellicule/internal/views"

	"github.com/docopt/docopt-go"
	"gopkg.in/yaml.v3"
)

type cli struct {
	rt  *bootstrap.Runtime
	out *yaml.Encoder
}

type command func(ctx context.Context, c *cli, opts docopt.Opts) error

var commands = []struct {
	name string
	fn   command
}{
	{"login", login},
	{"logout", logout},
	{"whoami", whoami},
	{"feed", feed},
	{"rolls", rolls},
	{"roll", roll},
	{"photo", photo},
	{"like", like},
	{"comment", comment},
	{"uncomment", uncomment},
	{"profile", showProfile},
	{"post", post},
	{"unpost", unpost},
	{"watch", watch},
}

// run executes the command selected in opts and writes its result to out as YAML.
func run(ctx context.Context, cfg *config.Config, opts docopt.Opts, out io.Writer, bopts ...bootstrap.Option) error {
	rt, err := bootstrap.New(ctx, cfg, bopts...)
	if err != nil {
		return err
	}
	defer rt.Close(context.Background())

	enc := yaml.NewEncoder(out)
	enc.SetIndent(2)
	defer enc.Close()
	c := &cli{rt: rt, out: enc}

	for _, cmd := range commands {
		if on, _ := opts.Bool(cmd.name); on {
			return cmd.fn(ctx, c, opts)
		}
	}
	return errors.New("no command given")
}

func (c *cli) print(v any) error {
	return c.out.Encode(v)
}

type identityOutput struct {
	ID    string `yaml:"id"`
	Email string `yaml:"email"`
}

type photoOutput struct {
	Photo    models.Photo     `yaml:"photo"`
	Comments []models.Comment `yaml:"comments"`
}

type rollOutput struct {
	Roll   models.FilmRoll `yaml:"roll"`
	Photos []models.Photo  `yaml:"photos"`
}

type profileOutput struct {
	Profile models.Profile    `yaml:"profile"`
	Photos  []models.Photo    `yaml:"photos"`
	Rolls   []models.FilmRoll `yaml:"film_rolls"`
}

type eventOutput struct {
	Type    realtime.Kind `yaml:"type"`
	Payload any           `yaml:"payload"`
}

func login(ctx context.Context, c *cli, opts docopt.Opts) error {
	email, _ := opts.String("--email")
	password, _ := opts.String("--password")
	if err := c.rt.Sessions.Login(ctx, models.Credentials{Email: email, Password: password}); err != nil {
		return fmt.Errorf("login: %w", err)
	}
	identity, _ := c.rt.Sessions.Current()
	return c.print(identityOutput{ID: identity.ID, Email: identity.Email})
}

func logout(ctx context.Context, c *cli, _ docopt.Opts) error {
	if err := c.rt.Sessions.Logout(ctx); err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	return c.print(map[string]bool{"logged_out": true})
}

func whoami(ctx context.Context, c *cli, _ docopt.Opts) error {
	identity, err := c.rt.Sessions.Require()
	if err != nil {
		return err
	}
	p, err := c.rt.Profiles.Resolve(ctx, identity)
	if err != nil {
		return fmt.Errorf("resolve profile: %w", err)
	}
	return c.print(p)
}

// mounted mounts v, returns its load error and leaves unmounting to the caller.
func mounted(ctx context.Context, v interface {
	Mount(ctx context.Context) error
	Unmount()
}) (func(), error) {
	if err := v.Mount(ctx); err != nil {
		v.Unmount()
		return nil, err
	}
	return v.Unmount, nil
}

func feed(ctx context.Context, c *cli, opts docopt.Opts) error {
	v := views.NewFeed(c.rt.Deps(), c.rt.FeedCache)
	done, err := mounted(ctx, v)
	if err != nil {
		return err
	}
	defer done()
	if refresh, _ := opts.Bool("--refresh"); refresh {
		if err := v.Reenter(ctx); err != nil {
			return err
		}
	}
	return c.print(v.Photos())
}

func rolls(ctx context.Context, c *cli, _ docopt.Opts) error {
	list, err := c.rt.API.ListFilmRolls(ctx)
	if err != nil {
		return err
	}
	return c.print(list)
}

func roll(ctx context.Context, c *cli, opts docopt.Opts) error {
	id, _ := opts.String("<id>")
	v := views.NewRollView(c.rt.Deps(), id)
	done, err := mounted(ctx, v)
	if err != nil {
		return err
	}
	defer done()
	return c.print(rollOutput{Roll: v.Roll(), Photos: v.Photos()})
}

func openPhoto(ctx context.Context, c *cli, id string) (*views.PhotoDetail, func(), error) {
	v := views.NewPhotoDetail(c.rt.Deps(), id)
	done, err := mounted(ctx, v)
	if err != nil {
		return nil, nil, err
	}
	return v, done, nil
}

func (c *cli) printPhoto(v *views.PhotoDetail) error {
	p, _ := v.Photo()
	return c.print(photoOutput{Photo: p, Comments: v.Comments()})
}

func photo(ctx context.Context, c *cli, opts docopt.Opts) error {
	id, _ := opts.String("<id>")
	v, done, err := openPhoto(ctx, c, id)
	if err != nil {
		return err
	}
	defer done()
	return c.printPhoto(v)
}

func like(ctx context.Context, c *cli, opts docopt.Opts) error {
	id, _ := opts.String("<photo_id>")
	v, done, err := openPhoto(ctx, c, id)
	if err != nil {
		return err
	}
	defer done()
	p, err := v.ToggleLike(ctx)
	if err != nil {
		return err
	}
	return c.print(p)
}

func comment(ctx context.Context, c *cli, opts docopt.Opts) error {
	id, _ := opts.String("<photo_id>")
	content, _ := opts.String("<content>")
	v, done, err := openPhoto(ctx, c, id)
	if err != nil {
		return err
	}
	defer done()
	created, err := v.AddComment(ctx, content)
	if err != nil {
		return err
	}
	return c.print(created)
}

func uncomment(ctx context.Context, c *cli, opts docopt.Opts) error {
	id, _ := opts.String("<photo_id>")
	commentID, _ := opts.String("<comment_id>")
	v, done, err := openPhoto(ctx, c, id)
	if err != nil {
		return err
	}
	defer done()
	if err := v.DeleteComment(ctx, commentID); err != nil {
		return err
	}
	return c.printPhoto(v)
}

func openProfile(ctx context.Context, c *cli) (*views.ProfileView, func(), error) {
	identity, err := c.rt.Sessions.Require()
	if err != nil {
		return nil, nil, err
	}
	// The view reads the resolver, which resolves asynchronously after login.
	if _, err := c.rt.Profiles.Resolve(ctx, identity); err != nil {
		return nil, nil, fmt.Errorf("resolve profile: %w", err)
	}
	v := views.NewProfileView(c.rt.Deps())
	done, err := mounted(ctx, v)
	if err != nil {
		return nil, nil, err
	}
	return v, done, nil
}

func (c *cli) printProfile(v *views.ProfileView) error {
	p, _ := v.Profile()
	return c.print(profileOutput{Profile: p, Photos: v.Photos(), Rolls: v.FilmRolls()})
}

func showProfile(ctx context.Context, c *cli, _ docopt.Opts) error {
	v, done, err := openProfile(ctx, c)
	if err != nil {
		return err
	}
	defer done()
	return c.printProfile(v)
}

func post(ctx context.Context, c *cli, opts docopt.Opts) error {
	rollID, _ := opts.String("<roll_id>")
	url, _ := opts.String("<url>")
	caption, _ := opts.String("<caption>")
	v, done, err := openProfile(ctx, c)
	if err != nil {
		return err
	}
	defer done()
	created, err := v.AddPhoto(ctx, rollID, url, caption)
	if err != nil {
		return err
	}
	return c.print(created)
}

func unpost(ctx context.Context, c *cli, opts docopt.Opts) error {
	id, _ := opts.String("<photo_id>")
	v, done, err := openProfile(ctx, c)
	if err != nil {
		return err
	}
	defer done()
	if err := v.DeletePhoto(ctx, id); err != nil {
		return err
	}
	return c.printProfile(v)
}

// watch prints every realtime event, optionally only those about one photo,
// until ctx is cancelled.
func watch(ctx context.Context, c *cli, opts docopt.Opts) error {
	photoID, _ := opts.String("<photo_id>")
	events := make(chan realtime.Event, 64)
	sub, err := c.rt.Channel.Subscribe(ctx, func(ev realtime.Event) {
		select {
		case events <- ev:
		default:
		}
	})
	if err != nil {
		return fmt.Errorf("watch: %w", err)
	}
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-events:
			if photoID != "" && !concerns(ev, photoID) {
				continue
			}
			if err := c.print(eventOutput{Type: ev.Kind(), Payload: payloadOf(ev)}); err != nil {
				return err
			}
		}
	}
}

// concerns reports whether ev may affect photoID. Comment deletions carry no
// photo id and always pass.
func concerns(ev realtime.Event, photoID string) bool {
	switch e := ev.(type) {
	case realtime.LikeAdded:
		return e.PhotoID == photoID
	case realtime.LikeRemoved:
		return e.PhotoID == photoID
	case realtime.CommentAdded:
		return e.Comment.PhotoID == photoID
	default:
		return true
	}
}

func payloadOf(ev realtime.Event) any {
	switch e := ev.(type) {
	case realtime.LikeAdded:
		return models.Like(e)
	case realtime.LikeRemoved:
		return models.Like(e)
	case realtime.CommentAdded:
		return e.Comment
	case realtime.CommentDeleted:
		return map[string]string{"id": e.ID}
	default:
		return nil
	}
}
