package server

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/motti-landau/kvstore"
)

type upsertRequest struct {
	Key        string   `json:"key"`
	Value      string   `json:"value"`
	Tags       []string `json:"tags"` // absent keeps the current tags
	TTLMinutes *uint64  `json:"ttl_minutes"`
}

type keyRequest struct {
	Key string `json:"key"`
}

type tagRequest struct {
	Key string `json:"key"`
	Tag string `json:"tag"`
}

type ttlRequest struct {
	Key        string `json:"key"`
	TTLMinutes uint64 `json:"ttl_minutes"`
}

type renameRequest struct {
	From string `json:"from"`
	To   string `json:"to"`
}

type tagOnlyRequest struct {
	Tag string `json:"tag"`
}

func decode(c echo.Context, v any) error {
	if err := c.Echo().JSONSerializer.Deserialize(c, v); err != nil {
		var he *echo.HTTPError
		if errors.As(err, &he) && he.Code == http.StatusRequestEntityTooLarge {
			return he
		}
		return &kvstore.ValidationError{Field: "body", Reason: "invalid json body"}
	}
	return nil
}

func required(value, field string) (string, error) {
	v := strings.TrimSpace(value)
	if v == "" {
		return "", &kvstore.ValidationError{Field: field, Reason: "cannot be empty"}
	}
	return v, nil
}

func positiveMinutes(n uint64, field string) (time.Duration, error) {
	if n == 0 {
		return 0, &kvstore.ValidationError{Field: field, Reason: "must be greater than 0"}
	}
	return kvstore.Minutes(n, field)
}

func text(c echo.Context, format string, args ...any) error {
	return c.String(http.StatusOK, fmt.Sprintf(format, args...)+"\n")
}

func (s *Server) upsert(c echo.Context) error {
	var req upsertRequest
	if err := decode(c, &req); err != nil {
		return err
	}
	key, err := required(req.Key, "key")
	if err != nil {
		return err
	}
	opts := kvstore.PutOptions{Tags: req.Tags}
	if req.TTLMinutes != nil {
		if opts.TTL, err = positiveMinutes(*req.TTLMinutes, "ttl_minutes"); err != nil {
			return err
		}
	}
	res, err := s.store.Put(c.Request().Context(), key, req.Value, opts)
	if err != nil {
		return err
	}
	if res.Created() {
		return text(c, "created '%s'", key)
	}
	return text(c, "updated '%s'", key)
}

func (s *Server) deleteRecord(c echo.Context) error {
	var req keyRequest
	if err := decode(c, &req); err != nil {
		return err
	}
	key, err := required(req.Key, "key")
	if err != nil {
		return err
	}
	if _, err := s.store.Remove(c.Request().Context(), key); err != nil {
		return err
	}
	return text(c, "deleted '%s'", key)
}

func (s *Server) addTag(c echo.Context) error {
	var req tagRequest
	if err := decode(c, &req); err != nil {
		return err
	}
	key, err := required(req.Key, "key")
	if err != nil {
		return err
	}
	tag, err := required(req.Tag, "tag")
	if err != nil {
		return err
	}
	_, added, err := s.store.AddTag(c.Request().Context(), key, tag)
	if err != nil {
		return err
	}
	if !added {
		return text(c, "tag '%s' already exists on '%s'", tag, key)
	}
	return text(c, "added tag '%s' to '%s'", tag, key)
}

func (s *Server) removeTag(c echo.Context) error {
	var req tagRequest
	if err := decode(c, &req); err != nil {
		return err
	}
	key, err := required(req.Key, "key")
	if err != nil {
		return err
	}
	tag, err := required(req.Tag, "tag")
	if err != nil {
		return err
	}
	if _, err := s.store.RemoveTag(c.Request().Context(), key, tag); err != nil {
		return err
	}
	return text(c, "removed tag '%s' from '%s'", tag, key)
}

func (s *Server) extendTTL(c echo.Context) error {
	var req ttlRequest
	if err := decode(c, &req); err != nil {
		return err
	}
	key, err := required(req.Key, "key")
	if err != nil {
		return err
	}
	d, err := positiveMinutes(req.TTLMinutes, "ttl_minutes")
	if err != nil {
		return err
	}
	if _, err := s.store.ExtendTTL(c.Request().Context(), key, d); err != nil {
		return err
	}
	return text(c, "extended ttl for '%s' by %d minute(s)", key, req.TTLMinutes)
}

func (s *Server) renameTag(c echo.Context) error {
	var req renameRequest
	if err := decode(c, &req); err != nil {
		return err
	}
	from, err := required(req.From, "from")
	if err != nil {
		return err
	}
	to, err := required(req.To, "to")
	if err != nil {
		return err
	}
	if from == to {
		return &kvstore.ValidationError{Field: "to", Reason: "must differ from 'from'"}
	}
	n, err := s.store.RenameTag(c.Request().Context(), from, to)
	if err != nil {
		return err
	}
	return text(c, "renamed tag '%s' to '%s' on %d record(s)", from, to, n)
}

func (s *Server) deleteTag(c echo.Context) error {
	var req tagOnlyRequest
	if err := decode(c, &req); err != nil {
		return err
	}
	tag, err := required(req.Tag, "tag")
	if err != nil {
		return err
	}
	n, err := s.store.DeleteTag(c.Request().Context(), tag)
	if err != nil {
		return err
	}
	return text(c, "deleted tag '%s' from %d record(s)", tag, n)
}
