package controllers

import (
	"esign-backend/middlewares"
	"esign-backend/models"
	"esign-backend/signature"
	"esign-backend/utils"

	"github.com/gofiber/fiber/v2"
)

// SignatureRequestController serves the staff side of signature requests.
type SignatureRequestController struct {
	signatures *signature.Service
}

func NewSignatureRequestController(svc *signature.Service) *SignatureRequestController {
	return &SignatureRequestController{signatures: svc}
}

type createSignatureRequestDTO struct {
	DocumentTitle  string `json:"document_title" validate:"required,max=255"`
	SignerName     string `json:"signer_name" validate:"omitempty,max=255"`
	SignerEmail    string `json:"signer_email" validate:"omitempty,email"`
	SignerClientID *uint  `json:"signer_client_id" validate:"omitempty,gt=0"`
	ExpiresInDays  int    `json:"expires_in_days" validate:"omitempty,min=1,max=90"`
}

func (h *SignatureRequestController) Create(c *fiber.Ctx) error {
	var dto createSignatureRequestDTO
	if err := middlewares.BindAndValidate(c, &dto); err != nil {
		return err
	}
	utils.NormalizeDTO(&dto)

	out, err := h.signatures.Create(c.UserContext(), signature.CreateInput{
		RequesterID:    middlewares.UserID(c),
		TenantSchema:   middlewares.Schema(c),
		DocumentTitle:  dto.DocumentTitle,
		SignerName:     dto.SignerName,
		SignerEmail:    dto.SignerEmail,
		SignerClientID: dto.SignerClientID,
		ExpiresInDays:  dto.ExpiresInDays,
		Client:         clientOf(c),
	})
	if err != nil {
		return staffError(err)
	}
	return c.Status(fiber.StatusCreated).JSON(out)
}

func (h *SignatureRequestController) List(c *fiber.Ctx) error {
	filter := signature.ListFilter{
		Limit:  utils.ParseIntDefault(c.Query("limit"), 20),
		Offset: utils.ParseIntDefault(c.Query("offset"), 0),
	}
	if raw := c.Query("status"); raw != "" {
		st, err := models.ParseSignatureStatus(raw)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "unknown status filter")
		}
		filter.Status = &st
	}

	rows, total, err := h.signatures.List(c.UserContext(), middlewares.Schema(c), filter)
	if err != nil {
		return staffError(err)
	}
	return c.JSON(fiber.Map{
		"signature_requests": rows,
		"total":              total,
		"limit":              filter.Limit,
		"offset":             filter.Offset,
	})
}

func (h *SignatureRequestController) Get(c *fiber.Ctx) error {
	req, err := h.signatures.Get(c.UserContext(), middlewares.Schema(c), c.Params("id"))
	if err != nil {
		return staffError(err)
	}
	return c.JSON(req)
}

func (h *SignatureRequestController) Audit(c *fiber.Ctx) error {
	rows, err := h.signatures.AuditTrail(c.UserContext(), middlewares.Schema(c), c.Params("id"))
	if err != nil {
		return staffError(err)
	}
	return c.JSON(fiber.Map{"audit": rows})
}

func (h *SignatureRequestController) Cancel(c *fiber.Ctx) error {
	err := h.signatures.Cancel(c.UserContext(), middlewares.Schema(c), c.Params("id"), middlewares.UserID(c), clientOf(c))
	if err != nil {
		return staffError(err)
	}
	return c.JSON(fiber.Map{"success": true})
}

func (h *SignatureRequestController) Resend(c *fiber.Ctx) error {
	url, err := h.signatures.ResendLink(c.UserContext(), middlewares.Schema(c), c.Params("id"))
	if err != nil {
		return staffError(err)
	}
	return c.JSON(fiber.Map{"success": true, "signing_url": url})
}
