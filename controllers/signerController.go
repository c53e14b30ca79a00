package controllers

import (
	"esign-backend/middlewares"
	"esign-backend/signature"

	"github.com/gofiber/fiber/v2"
)

// SignerController serves the public signing link. The capability token in
// the path is the only credential; sessions and cookies are ignored.
type SignerController struct {
	signatures *signature.Service
}

func NewSignerController(svc *signature.Service) *SignerController {
	return &SignerController{signatures: svc}
}

type verifyOtpDTO struct {
	Code string `json:"code" validate:"required,len=6,numeric"`
}

type declineDTO struct {
	Reason *string `json:"reason" validate:"omitempty,max=1000"`
}

func (h *SignerController) View(c *fiber.Ctx) error {
	view, err := h.signatures.View(c.UserContext(), c.Params("token"), clientOf(c))
	if err != nil {
		return signerError(err)
	}
	return c.JSON(view)
}

func (h *SignerController) RequestOTP(c *fiber.Ctx) error {
	masked, err := h.signatures.RequestOTP(c.UserContext(), c.Params("token"), clientOf(c))
	if err != nil {
		return signerError(err)
	}
	return c.JSON(fiber.Map{"success": true, "maskedEmail": masked})
}

func (h *SignerController) Verify(c *fiber.Ctx) error {
	if err := h.signatures.CheckLink(c.Params("token")); err != nil {
		return signerError(err)
	}
	var dto verifyOtpDTO
	if err := middlewares.BindAndValidate(c, &dto); err != nil {
		return err
	}
	if err := h.signatures.Sign(c.UserContext(), c.Params("token"), dto.Code, clientOf(c)); err != nil {
		return signerError(err)
	}
	return c.JSON(fiber.Map{"success": true})
}

func (h *SignerController) Decline(c *fiber.Ctx) error {
	if err := h.signatures.CheckLink(c.Params("token")); err != nil {
		return signerError(err)
	}
	var dto declineDTO
	if err := middlewares.BindAndValidate(c, &dto); err != nil {
		return err
	}
	if err := h.signatures.Decline(c.UserContext(), c.Params("token"), dto.Reason, clientOf(c)); err != nil {
		return signerError(err)
	}
	return c.JSON(fiber.Map{"success": true})
}
