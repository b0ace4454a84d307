// Package api serves stored events over HTTP.
package api

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v3"
	"github.com/sealor/ai-extractor/pkg/conversation"
	"github.com/sealor/ai-extractor/pkg/logging"
	"github.com/sealor/ai-extractor/pkg/persistence"
)

type server struct {
	store  persistence.Store
	logger *slog.Logger
}

// New returns the app with all routes registered. It only reads from store.
func New(store persistence.Store, logger *slog.Logger) *fiber.App {
	if logger == nil {
		logger = logging.Logger()
	}
	s := &server{store: store, logger: logger}

	app := fiber.New()
	app.Get("/health", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	app.Get("/events", s.listEvents)
	app.Get("/events/:id", s.getEvent)
	app.Get("/events/:id/replay", s.replayEvent)
	return app
}

func (s *server) listEvents(c fiber.Ctx) error {
	filter := persistence.Filter{
		Version:  c.Query("version"),
		Filename: c.Query("filename"),
		Limit:    fiber.Query[int](c, "limit", 0),
		Offset:   fiber.Query[int](c, "offset", 0),
	}
	if filter.Limit < 0 || filter.Offset < 0 {
		return c.Status(400).JSON(fiber.Map{"error": "limit and offset must not be negative"})
	}
	records, err := s.store.ListEvents(c.Context(), filter)
	if err != nil {
		return s.internalError(c, err)
	}
	return c.JSON(records)
}

func (s *server) getEvent(c fiber.Ctx) error {
	rec, err := s.lookup(c)
	if rec == nil {
		return err
	}
	return c.JSON(rec)
}

// replayEvent rebuilds the stored history and returns it in wire format.
func (s *server) replayEvent(c fiber.Ctx) error {
	rec, err := s.lookup(c)
	if rec == nil {
		return err
	}
	event, err := persistence.NewEventFromRecord(rec)
	if err == nil && event.Len() == 0 {
		err = conversation.ErrEmptyHistory
	}
	if err != nil {
		return c.Status(422).JSON(fiber.Map{"error": err.Error()})
	}
	wire, err := conversation.Serialize(event.History())
	if errors.Is(err, conversation.ErrStructural) {
		return c.Status(422).JSON(fiber.Map{"error": err.Error()})
	}
	if err != nil {
		return s.internalError(c, err)
	}
	return c.JSON(fiber.Map{"id": rec.ID, "messages": wire})
}

// lookup writes the error response itself and returns a nil record in that case.
func (s *server) lookup(c fiber.Ctx) (*persistence.Record, error) {
	id := fiber.Params[int64](c, "id", 0)
	if id <= 0 {
		return nil, c.Status(400).JSON(fiber.Map{"error": "invalid event id"})
	}
	rec, err := s.store.GetEvent(c.Context(), id)
	if err != nil {
		return nil, s.internalError(c, err)
	}
	if rec == nil {
		return nil, c.Status(404).JSON(fiber.Map{"error": "event not found"})
	}
	return rec, nil
}

func (s *server) internalError(c fiber.Ctx, err error) error {
	s.logger.Error("request failed", "path", c.Path(), "error", err)
	return c.Status(500).JSON(fiber.Map{"error": err.Error()})
}
