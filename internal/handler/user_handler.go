package handler

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/birthday-reminder/internal/domain"
	"github.com/kursadbilgin/birthday-reminder/internal/repository"
	"github.com/kursadbilgin/birthday-reminder/internal/service"
)

const (
	msgUserCreated = "User created successfully"
	msgUserDeleted = "User deleted successfully"
)

type UserService interface {
	CreateUser(ctx context.Context, input service.CreateUserInput) (*domain.User, error)
	ListUsers(ctx context.Context) ([]domain.User, error)
	ListNotifications(ctx context.Context, params repository.ListParams) ([]domain.Notification, error)
	UpdateUser(ctx context.Context, id int64, patch domain.UserPatch) (bool, error)
	DeleteUser(ctx context.Context, id int64) error
}

type UserHandler struct {
	service  UserService
	validate *validator.Validate
}

func NewUserHandler(service UserService) (*UserHandler, error) {
	if service == nil {
		return nil, fmt.Errorf("user service is required")
	}
	return &UserHandler{service: service, validate: newValidator()}, nil
}

func RegisterUserRoutes(router fiber.Router, service UserService) error {
	h, err := NewUserHandler(service)
	if err != nil {
		return err
	}

	router.Post("/user", h.CreateUser)
	router.Get("/user", h.ListUsers)
	router.Get("/user/notification", h.ListNotifications)
	router.Put("/user/:id", h.UpdateUser)
	router.Delete("/user/:id", h.DeleteUser)

	return nil
}

type createUserRequest struct {
	FirstName string `json:"firstName" validate:"required"`
	LastName  string `json:"lastName" validate:"required"`
	Email     string `json:"email" validate:"required,email"`
	Birthday  string `json:"birthday" validate:"required"`
	Timezone  string `json:"timezone" validate:"required"`
}

type updateUserRequest struct {
	FirstName *string `json:"firstName"`
	LastName  *string `json:"lastName"`
	Email     *string `json:"email" validate:"omitnil,email"`
	Birthday  *string `json:"birthday"`
	Timezone  *string `json:"timezone"`
}

type userResponse struct {
	ID        int64     `json:"id"`
	FirstName string    `json:"firstName"`
	LastName  string    `json:"lastName"`
	Email     string    `json:"email"`
	Birthday  string    `json:"birthday"`
	Timezone  string    `json:"timezone"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type notificationResponse struct {
	ID          int64     `json:"id"`
	UserID      int64     `json:"userId"`
	Type        string    `json:"type"`
	Status      string    `json:"status"`
	ScheduledAt time.Time `json:"scheduledAt"`
	CreatedAt   time.Time `json:"createdAt"`
}

type updateUserResponse struct {
	Updated bool `json:"updated"`
}

func (h *UserHandler) CreateUser(c *fiber.Ctx) error {
	var req createUserRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if err := h.validateStruct(req); err != nil {
		return toHTTPError(err)
	}

	birthday, err := domain.ParseBirthday(req.Birthday)
	if err != nil {
		return toHTTPError(err)
	}

	_, err = h.service.CreateUser(c.UserContext(), service.CreateUserInput{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		Birthday:  birthday,
		Timezone:  req.Timezone,
	})
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusCreated).SendString(msgUserCreated)
}

func (h *UserHandler) ListUsers(c *fiber.Ctx) error {
	users, err := h.service.ListUsers(c.UserContext())
	if err != nil {
		return toHTTPError(err)
	}

	responses := make([]userResponse, 0, len(users))
	for i := range users {
		responses = append(responses, toUserResponse(&users[i]))
	}
	return c.Status(fiber.StatusOK).JSON(responses)
}

// ListNotifications returns every notification, optionally narrowed by the
// status and type query parameters.
func (h *UserHandler) ListNotifications(c *fiber.Ctx) error {
	params, err := parseListParams(c)
	if err != nil {
		return toHTTPError(err)
	}

	notifications, err := h.service.ListNotifications(c.UserContext(), params)
	if err != nil {
		return toHTTPError(err)
	}

	responses := make([]notificationResponse, 0, len(notifications))
	for i := range notifications {
		responses = append(responses, toNotificationResponse(&notifications[i]))
	}
	return c.Status(fiber.StatusOK).JSON(responses)
}

func (h *UserHandler) UpdateUser(c *fiber.Ctx) error {
	id, err := parseUserID(c)
	if err != nil {
		return toHTTPError(err)
	}

	var req updateUserRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if err := h.validateStruct(req); err != nil {
		return toHTTPError(err)
	}

	patch, err := req.toPatch()
	if err != nil {
		return toHTTPError(err)
	}
	if patch.IsEmpty() {
		return toHTTPError(fmt.Errorf("%w: no fields to update", domain.ErrValidation))
	}

	updated, err := h.service.UpdateUser(c.UserContext(), id, patch)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(updateUserResponse{Updated: updated})
}

func (h *UserHandler) DeleteUser(c *fiber.Ctx) error {
	id, err := parseUserID(c)
	if err != nil {
		return toHTTPError(err)
	}

	if err := h.service.DeleteUser(c.UserContext(), id); err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).SendString(msgUserDeleted)
}

func (r updateUserRequest) toPatch() (domain.UserPatch, error) {
	patch := domain.UserPatch{
		FirstName: r.FirstName,
		LastName:  r.LastName,
		Email:     r.Email,
		Timezone:  r.Timezone,
	}
	if r.Birthday != nil {
		birthday, err := domain.ParseBirthday(*r.Birthday)
		if err != nil {
			return domain.UserPatch{}, err
		}
		patch.Birthday = &birthday
	}
	return patch, nil
}

func parseListParams(c *fiber.Ctx) (repository.ListParams, error) {
	var params repository.ListParams

	if raw := strings.TrimSpace(c.Query("status")); raw != "" {
		status, err := domain.ParseStatusFromString(raw)
		if err != nil {
			return repository.ListParams{}, err
		}
		params.Status = &status
	}
	if raw := strings.TrimSpace(c.Query("type")); raw != "" {
		typ, err := domain.ParseTypeFromString(raw)
		if err != nil {
			return repository.ListParams{}, err
		}
		params.Type = &typ
	}

	return params, nil
}

func parseUserID(c *fiber.Ctx) (int64, error) {
	raw := strings.TrimSpace(c.Params("id"))
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid user id %q", domain.ErrValidation, raw)
	}
	return id, nil
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func (h *UserHandler) validateStruct(req any) error {
	err := h.validate.Struct(req)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	messages := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		switch fe.Tag() {
		case "required":
			messages = append(messages, fe.Field()+" is required")
		case "email":
			messages = append(messages, fe.Field()+" must be a valid email")
		default:
			messages = append(messages, fe.Field()+" is invalid")
		}
	}
	return fmt.Errorf("%w: %s", domain.ErrValidation, strings.Join(messages, "; "))
}

func toUserResponse(u *domain.User) userResponse {
	return userResponse{
		ID:        u.ID,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Email:     u.Email,
		Birthday:  u.Birthday.Format(domain.BirthdayLayout),
		Timezone:  u.Timezone,
		UpdatedAt: u.UpdatedAt,
	}
}

func toNotificationResponse(n *domain.Notification) notificationResponse {
	return notificationResponse{
		ID:          n.ID,
		UserID:      n.UserID,
		Type:        n.Type.String(),
		Status:      n.Status.String(),
		ScheduledAt: n.ScheduledAt,
		CreatedAt:   n.CreatedAt,
	}
}

func toHTTPError(err error) error {
	var reqErr *domain.RequestError
	switch {
	case errors.Is(err, domain.ErrValidation):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrConflict):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	case errors.As(err, &reqErr):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	default:
		return err
	}
}
