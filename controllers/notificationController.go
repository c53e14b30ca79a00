package controllers

import (
	"esign-backend/middlewares"
	"esign-backend/notify"
	"esign-backend/utils"

	"github.com/gofiber/fiber/v2"
)

type NotificationController struct {
	store *notify.Store
}

func NewNotificationController(store *notify.Store) *NotificationController {
	return &NotificationController{store: store}
}

func (h *NotificationController) List(c *fiber.Ctx) error {
	rows, err := h.store.List(c.UserContext(), middlewares.UserID(c), utils.ParseIntDefault(c.Query("limit"), 50))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"notifications": rows})
}

func (h *NotificationController) MarkRead(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return fiber.NewError(fiber.StatusBadRequest, "invalid notification id")
	}
	ok, err := h.store.MarkRead(c.UserContext(), middlewares.UserID(c), uint(id))
	if err != nil {
		return err
	}
	if !ok {
		return fiber.NewError(fiber.StatusNotFound, "notification not found")
	}
	return c.JSON(fiber.Map{"success": true})
}
