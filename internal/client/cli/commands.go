package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"

	"github.com/iudanet/doccollab/internal/client/api"
	"github.com/iudanet/doccollab/internal/models"
	dto "github.com/iudanet/doccollab/pkg/api"
)

type command struct {
	run   func(ctx context.Context, c *Cli, client *api.Client, args []string) error
	usage string
}

var commandOrder = []string{"doc-create", "doc-grant", "doc-resume", "state", "start", "end", "submit", "lock", "unlock"}

var commands = map[string]command{
	"doc-create": {run: runDocCreate, usage: "register a document: -title T"},
	"doc-grant":  {run: runDocGrant, usage: "grant edit capability: -doc ID -actor ID"},
	"doc-resume": {run: runDocResume, usage: "resume a halted document (owner only): -doc ID"},
	"state":      {run: runState, usage: "show collaboration state: -doc ID"},
	"start":      {run: runStart, usage: "start a session: -doc ID [-discipline D] [-lines A-B] [-section S] [-name N]"},
	"end":        {run: runEnd, usage: "end a session: -session ID"},
	"submit":     {run: runSubmit, usage: "submit an operation: -session ID -kind K -line L -char C [-content T] [-length N]"},
	"lock":       {run: runLock, usage: "acquire a lock: -doc ID -discipline D [-session ID] [-lines A-B] [-section S]"},
	"unlock":     {run: runUnlock, usage: "release a lock: -lock ID"},
}

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func required(name, value string) error {
	if value == "" {
		return fmt.Errorf("-%s is required", name)
	}
	return nil
}

func runDocCreate(ctx context.Context, c *Cli, client *api.Client, args []string) error {
	fs := newFlagSet("doc-create")
	title := fs.String("title", "", "document title")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required("title", *title); err != nil {
		return err
	}

	doc, err := client.CreateDocument(ctx, *title)
	if err != nil {
		return err
	}
	c.io.Printf("Document created: %s\n", doc.ID)
	return nil
}

func runDocGrant(ctx context.Context, c *Cli, client *api.Client, args []string) error {
	fs := newFlagSet("doc-grant")
	doc := fs.String("doc", "", "document id")
	actor := fs.String("actor", "", "actor id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := errors.Join(required("doc", *doc), required("actor", *actor)); err != nil {
		return err
	}

	if err := client.GrantEdit(ctx, *doc, *actor); err != nil {
		return err
	}
	c.io.Printf("Actor %s can now edit %s\n", *actor, *doc)
	return nil
}

func runState(ctx context.Context, c *Cli, client *api.Client, args []string) error {
	fs := newFlagSet("state")
	doc := fs.String("doc", "", "document id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required("doc", *doc); err != nil {
		return err
	}

	state, err := client.State(ctx, *doc)
	if err != nil {
		return err
	}
	return c.printJSON(state)
}

func runStart(ctx context.Context, c *Cli, client *api.Client, args []string) error {
	fs := newFlagSet("start")
	doc := fs.String("doc", "", "document id")
	discipline := fs.String("discipline", string(models.DisciplineOptimistic), "exclusive, shared, region or optimistic")
	name := fs.String("name", "", "display name")
	var region regionFlags
	region.register(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required("doc", *doc); err != nil {
		return err
	}
	r, err := region.region()
	if err != nil {
		return err
	}

	resp, err := client.StartSession(ctx, dto.StartSessionRequest{
		Region:     r,
		DocumentID: *doc,
		ActorName:  *name,
		Discipline: *discipline,
	})
	if err != nil {
		return err
	}

	c.io.Printf("Session started: %s\n", resp.Session.ID)
	c.io.Printf("Client id: %s\n", resp.Session.ClientID)
	if resp.Lock != nil {
		c.io.Printf("Lock: %s (%s, expires %s)\n", resp.Lock.ID, resp.Lock.Discipline, resp.Lock.ExpiresAt.Format("2006-01-02 15:04:05"))
	}
	return nil
}

func runEnd(ctx context.Context, c *Cli, client *api.Client, args []string) error {
	fs := newFlagSet("end")
	sessionID := fs.String("session", "", "session id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required("session", *sessionID); err != nil {
		return err
	}

	if err := client.EndSession(ctx, *sessionID); err != nil {
		return err
	}
	c.io.Printf("Session ended: %s\n", *sessionID)
	return nil
}

func runDocResume(ctx context.Context, c *Cli, client *api.Client, args []string) error {
	fs := newFlagSet("doc-resume")
	doc := fs.String("doc", "", "document id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required("doc", *doc); err != nil {
		return err
	}

	resp, err := client.Resume(ctx, *doc)
	if err != nil {
		return err
	}
	if resp.Resumed {
		c.io.Printf("Document %s resumed\n", resp.DocumentID)
	} else {
		c.io.Printf("Document %s was not halted\n", resp.DocumentID)
	}
	return nil
}

func runSubmit(ctx context.Context, c *Cli, client *api.Client, args []string) error {
	fs := newFlagSet("submit")
	sessionID := fs.String("session", "", "session id")
	kind := fs.String("kind", string(models.OperationInsert), "insert, delete, replace, move or format")
	line := fs.Int("line", 0, "line")
	char := fs.Int("char", 0, "character")
	content := fs.String("content", "", "content")
	length := fs.Int("length", -1, "length (omitted when negative)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required("session", *sessionID); err != nil {
		return err
	}

	req := dto.SubmitOperationRequest{
		Kind:     *kind,
		Content:  *content,
		Position: models.Position{Line: *line, Character: *char},
	}
	if *length >= 0 {
		req.Length = length
	}

	resp, err := client.SubmitOperation(ctx, *sessionID, req)
	if err != nil {
		var se *api.StatusError
		if errors.As(err, &se) && se.OperationID != "" {
			c.io.Printf("Operation %s recorded (sequence %d) before the failure\n", se.OperationID, se.SequenceNumber)
		}
		return err
	}

	c.io.Printf("Operation %s recorded (sequence %d)\n", resp.Operation.ID, resp.Operation.SequenceNumber)
	for _, w := range resp.Warnings {
		c.io.Printf("Warning: %s\n", w)
	}
	for _, cf := range resp.Conflicts {
		c.io.Printf("Conflict %s: %s, severity %s\n", cf.ID, cf.Kind, cf.Severity)
	}
	for _, r := range resp.Resolutions {
		c.io.Printf("Proposed resolution for %s: %s (confidence %.1f)\n", r.ConflictID, r.Strategy, r.Confidence)
	}
	return nil
}

func runLock(ctx context.Context, c *Cli, client *api.Client, args []string) error {
	fs := newFlagSet("lock")
	doc := fs.String("doc", "", "document id")
	discipline := fs.String("discipline", "", "exclusive, shared, region or optimistic")
	sessionID := fs.String("session", "", "owning session id")
	var region regionFlags
	region.register(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := errors.Join(required("doc", *doc), required("discipline", *discipline)); err != nil {
		return err
	}
	r, err := region.region()
	if err != nil {
		return err
	}

	resp, err := client.AcquireLock(ctx, dto.AcquireLockRequest{
		Region:     r,
		DocumentID: *doc,
		SessionID:  *sessionID,
		Discipline: *discipline,
	})
	if err != nil {
		return err
	}

	if resp.Lock == nil {
		c.io.Println("Granted (optimistic, no lock record)")
		return nil
	}
	c.io.Printf("Lock acquired: %s\n", resp.Lock.ID)
	return nil
}

func runUnlock(ctx context.Context, c *Cli, client *api.Client, args []string) error {
	fs := newFlagSet("unlock")
	lockID := fs.String("lock", "", "lock id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required("lock", *lockID); err != nil {
		return err
	}

	if err := client.ReleaseLock(ctx, *lockID); err != nil {
		return err
	}
	c.io.Printf("Lock released: %s\n", *lockID)
	return nil
}
