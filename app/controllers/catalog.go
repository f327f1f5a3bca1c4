package controllers

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"github.com/closerdesk/closerdesk/app/repository"
)

// catalogHandlers serves list/create/update/delete for one admin-managed table.
// Updates decode the body over the stored row, so omitted fields keep their value.
type catalogHandlers[T any] struct {
	key  string
	repo repository.CatalogRepository[T]
	id   func(*T) *uint
	// check runs after decoding and before validation; it may normalise the item.
	check func(ctx context.Context, item *T) error
	// remove replaces repo.Delete when deletion has business rules.
	remove func(c *fiber.Ctx, id uint) error
	// query replaces repo.List when the listing takes query parameters.
	query func(c *fiber.Ctx) ([]T, error)
}

func (h catalogHandlers[T]) list(c *fiber.Ctx) error {
	var items []T
	var err error
	if h.query != nil {
		items, err = h.query(c)
	} else {
		items, err = h.repo.List(c.UserContext())
	}
	if err != nil {
		return respondError(c, err)
	}
	if items == nil {
		items = []T{}
	}
	return c.JSON(fiber.Map{h.key: items})
}

func (h catalogHandlers[T]) get(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	item, err := h.repo.GetByID(c.UserContext(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(item)
}

func (h catalogHandlers[T]) create(c *fiber.Ctx) error {
	item := new(T)
	if err := c.BodyParser(item); err != nil {
		return badRequest(c, "invalid JSON body")
	}
	*h.id(item) = 0
	if err := h.prepare(c.UserContext(), item); err != nil {
		return respondError(c, err)
	}
	if err := h.repo.Create(c.UserContext(), item); err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(item)
}

func (h catalogHandlers[T]) update(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	item, err := h.repo.GetByID(c.UserContext(), id)
	if err != nil {
		return respondError(c, err)
	}
	if err := c.BodyParser(item); err != nil {
		return badRequest(c, "invalid JSON body")
	}
	*h.id(item) = id
	if err := h.prepare(c.UserContext(), item); err != nil {
		return respondError(c, err)
	}
	if err := h.repo.Update(c.UserContext(), item); err != nil {
		return respondError(c, err)
	}
	return c.JSON(item)
}

func (h catalogHandlers[T]) delete(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	if h.remove != nil {
		err = h.remove(c, id)
	} else {
		err = h.repo.Delete(c.UserContext(), id)
	}
	if err != nil {
		return respondError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h catalogHandlers[T]) prepare(ctx context.Context, item *T) error {
	if h.check != nil {
		if err := h.check(ctx, item); err != nil {
			return err
		}
	}
	return validate.Struct(item)
}

func (h catalogHandlers[T]) mount(r fiber.Router, path string) {
	r.Get(path, h.list)
	r.Post(path, h.create)
	r.Get(path+"/:id", h.get)
	r.Put(path+"/:id", h.update)
	r.Delete(path+"/:id", h.delete)
}
