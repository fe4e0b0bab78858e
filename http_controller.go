package auth

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
	"github.com/google/uuid"
)

// RegisterAuthRoutes mounts the account endpoints on app. Every route
// expects SessionMiddleware to have run.
func RegisterAuthRoutes[T any](app router.Router[T], controller *AuthController) {
	app.Post(controller.Routes.Login, controller.LoginPost).
		SetName("sign-in.post")

	app.Post(controller.Routes.Logout, controller.LogOut).
		SetName("sign-out.post")

	app.Post(controller.Routes.Register, controller.RegistrationCreate).
		SetName("register.post")

	app.Get(controller.Routes.Account, controller.AccountShow, LoggedIn()).
		SetName("account.get")

	app.Post(controller.Routes.Account, controller.AccountUpdate, LoggedIn()).
		SetName("account.post")

	app.Post(controller.Routes.Avatar, controller.AvatarUpdate, LoggedIn()).
		SetName("avatar.post")

	app.Post(controller.Routes.Password, controller.PasswordUpdate, LoggedIn()).
		SetName("password.post")

	app.Post(controller.Routes.Forgot, controller.ForgotPost).
		SetName("password-reset.post")

	app.Get(fmt.Sprintf("%s/:token", controller.Routes.Reset), controller.ResetForm).
		SetName("password-reset.get")

	app.Post(controller.Routes.Reset, controller.ResetExecute).
		SetName("password-reset-execute.post")
}

type AuthControllerRoutes struct {
	Login    string
	Logout   string
	Register string
	Account  string
	Avatar   string
	Password string
	Forgot   string
	Reset    string
}

type AuthController struct {
	Debug   bool
	Logger  Logger
	Service *AuthService
	Cookies *SessionCookies
	Routes  *AuthControllerRoutes
}

type AuthControllerOption func(*AuthController) *AuthController

func WithControllerService(s *AuthService) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Service = s
		return c
	}
}

func WithControllerCookies(cookies *SessionCookies) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Cookies = cookies
		return c
	}
}

func WithControllerLogger(l Logger) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		if l != nil {
			c.Logger = l
		}
		return c
	}
}

func WithControllerDebug(debug bool) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Debug = debug
		return c
	}
}

func NewAuthController(opts ...AuthControllerOption) *AuthController {
	c := &AuthController{
		Logger: defLogger{},
		Routes: &AuthControllerRoutes{
			Login:    "/login",
			Logout:   "/logout",
			Register: "/register",
			Account:  "/account",
			Avatar:   "/avatar",
			Password: "/password",
			Forgot:   "/forgot",
			Reset:    "/reset",
		},
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Service == nil {
		panic("Missing AuthService in auth controller...")
	}

	if c.Cookies == nil {
		panic("Missing SessionCookies in auth controller...")
	}

	return c
}

// LoginRequest payload
type LoginRequest struct {
	Email    string `form:"email" json:"email"`
	Password string `form:"password" json:"password"`
}

// Validate will run validation rules
func (r LoginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(
			&r.Email,
			validation.Required,
			is.Email,
		),
		validation.Field(
			&r.Password,
			validation.Required,
		),
	)
}

func (a *AuthController) LoginPost(ctx router.Context) error {
	payload := new(LoginRequest)

	if err := ctx.Bind(payload); err != nil {
		return a.badRequest(ctx, err)
	}

	if err := payload.Validate(); err != nil {
		return a.invalid(ctx, FormatValidationErrorToMap(err))
	}

	a.debug("AUTH LOGIN", map[string]string{"email": payload.Email})

	// the account is bound to a fresh session id, never to the one the
	// request arrived with
	sid := NewSessionID()
	_, ok, err := a.Service.Login(ctx.Context(), sid, payload.Email, payload.Password)
	if err != nil {
		return a.failure(ctx, "Login", err)
	}

	if !ok {
		return a.invalid(ctx, map[string]string{
			"InvalidCredentials": FailureMessage(ErrInvalidCredentials, acceptLanguage(ctx)),
		})
	}

	if err := a.switchSession(ctx, sid); err != nil {
		return a.failure(ctx, "Login", err)
	}

	return refresh(ctx)
}

// LogOut drops the whole session and moves the client onto a new anonymous
// one.
func (a *AuthController) LogOut(ctx router.Context) error {
	if err := a.Service.Logout(ctx.Context(), a.sessionID(ctx)); err != nil {
		a.Logger.Error("logout failed: %v", err)
	}

	if _, _, err := a.Cookies.Rotate(ctx); err != nil {
		a.Logger.Error("failed to rotate session cookie: %v", err)
		a.Cookies.Clear(ctx)
	}

	return ctx.Redirect("/", router.StatusSeeOther)
}

// RegistrationCreatePayload is the form payload
type RegistrationCreatePayload struct {
	GivenName       string `form:"given_name" json:"given_name"`
	FamilyName      string `form:"family_name" json:"family_name"`
	Email           string `form:"email" json:"email"`
	Password        string `form:"password" json:"password"`
	ConfirmPassword string `form:"confirm_password" json:"confirm_password"`
}

// Validate will validate the payload
func (r RegistrationCreatePayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.GivenName, validation.Required, validation.Length(1, 200)),
		validation.Field(&r.FamilyName, validation.Required, validation.Length(1, 200)),
		validation.Field(&r.Email, validation.Required, validation.Length(6, 100), is.Email),
		validation.Field(&r.Password, validation.Required, validation.Length(8, 100)),
		validation.Field(
			&r.ConfirmPassword,
			validation.Required,
			validation.By(ValidateStringEquals(r.Password)),
		),
	)
}

func (a *AuthController) RegistrationCreate(ctx router.Context) error {
	payload := new(RegistrationCreatePayload)

	if err := ctx.Bind(payload); err != nil {
		return a.badRequest(ctx, err)
	}

	if err := payload.Validate(); err != nil {
		return a.invalid(ctx, FormatValidationErrorToMap(err))
	}

	a.debug("AUTH REGISTER", map[string]string{"email": payload.Email})

	sid := NewSessionID()
	_, err := a.Service.Register(
		ctx.Context(),
		sid,
		payload.Email,
		payload.Password,
		payload.GivenName,
		payload.FamilyName,
	)
	if err != nil {
		if errors.Is(err, ErrDuplicateEmail) {
			return a.invalid(ctx, map[string]string{
				"EmailAddressUsed": FailureMessage(err, acceptLanguage(ctx)),
			})
		}
		return a.failure(ctx, "Register", err)
	}

	if err := a.switchSession(ctx, sid); err != nil {
		return a.failure(ctx, "Register", err)
	}

	return refresh(ctx)
}

func (a *AuthController) AccountShow(ctx router.Context) error {
	account, _ := AccountFromContext(ctx.Context())
	return ctx.JSON(router.StatusOK, map[string]any{
		"account": account,
	})
}

// AccountDetailsPayload holds editable account fields
type AccountDetailsPayload struct {
	Email      string `form:"email" json:"email"`
	GivenName  string `form:"given_name" json:"given_name"`
	FamilyName string `form:"family_name" json:"family_name"`
}

func (r AccountDetailsPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, validation.Length(6, 100), is.Email),
		validation.Field(&r.GivenName, validation.Required, validation.Length(1, 200)),
		validation.Field(&r.FamilyName, validation.Required, validation.Length(1, 200)),
	)
}

func (a *AuthController) AccountUpdate(ctx router.Context) error {
	payload := new(AccountDetailsPayload)

	if err := ctx.Bind(payload); err != nil {
		return a.badRequest(ctx, err)
	}

	if err := payload.Validate(); err != nil {
		return a.invalid(ctx, FormatValidationErrorToMap(err))
	}

	accountID := currentAccountID(ctx)
	err := a.Service.UpdateDetails(
		ctx.Context(),
		a.sessionID(ctx),
		accountID,
		payload.Email,
		payload.GivenName,
		payload.FamilyName,
	)
	if err != nil {
		if errors.Is(err, ErrDuplicateEmail) {
			return a.invalid(ctx, map[string]string{
				"EmailAddressUsed": FailureMessage(err, acceptLanguage(ctx)),
			})
		}
		return a.failure(ctx, "Account", err)
	}

	return refresh(ctx)
}

// AvatarFormField is the multipart field carrying the image
const AvatarFormField = "attached_image"

// MaxAvatarSize caps the accepted upload
const MaxAvatarSize = 4 << 20

var errUploadMissing = errors.New("an image is required")

func (a *AuthController) AvatarUpdate(ctx router.Context) error {
	fileName, content, err := formFile(ctx, AvatarFormField, MaxAvatarSize)
	if err != nil {
		return a.invalid(ctx, map[string]string{
			AvatarFormField: err.Error(),
		})
	}

	if err := ValidateAvatarFileName(fileName); err != nil {
		return a.failure(ctx, AvatarFormField, err)
	}

	_, err = a.Service.UpdateAvatar(
		ctx.Context(),
		a.sessionID(ctx),
		currentAccountID(ctx),
		fileName,
		bytes.NewReader(content),
		int64(len(content)),
	)
	if err != nil {
		return a.failure(ctx, AvatarFormField, err)
	}

	return refresh(ctx)
}

// formFile reads the first file sent under field in a multipart body.
func formFile(ctx router.Context, field string, limit int64) (string, []byte, error) {
	mediaType, params, err := mime.ParseMediaType(ctx.Header("Content-Type"))
	if err != nil || !strings.HasPrefix(mediaType, "multipart/") || params["boundary"] == "" {
		return "", nil, errUploadMissing
	}

	reader := multipart.NewReader(bytes.NewReader(ctx.Body()), params["boundary"])
	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			return "", nil, errUploadMissing
		}
		if err != nil {
			return "", nil, errUploadMissing
		}

		if part.FormName() != field || part.FileName() == "" {
			part.Close()
			continue
		}

		content, err := io.ReadAll(io.LimitReader(part, limit+1))
		part.Close()
		if err != nil {
			return "", nil, err
		}
		if int64(len(content)) > limit {
			return "", nil, fmt.Errorf("image must be smaller than %d bytes", limit)
		}
		if len(content) == 0 {
			return "", nil, errUploadMissing
		}

		return part.FileName(), content, nil
	}
}

// PasswordChangePayload holds the new password
type PasswordChangePayload struct {
	NewPassword     string `form:"new_password" json:"new_password"`
	ConfirmPassword string `form:"confirm_password" json:"confirm_password"`
}

func (r PasswordChangePayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.NewPassword, validation.Required, validation.Length(8, 100)),
		validation.Field(&r.ConfirmPassword, validation.Required),
	)
}

func (a *AuthController) PasswordUpdate(ctx router.Context) error {
	payload := new(PasswordChangePayload)

	if err := ctx.Bind(payload); err != nil {
		return a.badRequest(ctx, err)
	}

	if err := payload.Validate(); err != nil {
		return a.invalid(ctx, FormatValidationErrorToMap(err))
	}

	err := a.Service.ChangePassword(
		ctx.Context(),
		currentAccountID(ctx),
		payload.NewPassword,
		payload.ConfirmPassword,
	)
	if err != nil {
		return a.failure(ctx, "NewPasswordMismatch", err)
	}

	return refresh(ctx)
}

// ForgotPayload holds the email to recover
type ForgotPayload struct {
	Email string `form:"email" json:"email"`
}

func (r ForgotPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
	)
}

// ForgotPost always answers the same way so callers can not discover which
// emails are registered.
func (a *AuthController) ForgotPost(ctx router.Context) error {
	payload := new(ForgotPayload)

	if err := ctx.Bind(payload); err != nil {
		return a.badRequest(ctx, err)
	}

	if err := payload.Validate(); err != nil {
		return a.invalid(ctx, FormatValidationErrorToMap(err))
	}

	if _, err := a.Service.ForgotPassword(ctx.Context(), payload.Email); err != nil {
		return a.failure(ctx, "Forgot", err)
	}

	return refresh(ctx)
}

func (a *AuthController) ResetForm(ctx router.Context) error {
	token := ctx.Param("token")

	found, expired, err := a.Service.VerifyResetToken(ctx.Context(), token)
	if err != nil {
		return a.failure(ctx, "Token", err)
	}

	resp := map[string]any{
		"token":   token,
		"found":   found,
		"expired": expired,
	}

	a.debug("PASSWORD RESET", resp)

	return ctx.JSON(router.StatusOK, resp)
}

// ResetPayload redeems a reset token
type ResetPayload struct {
	Token           string `form:"token" json:"token"`
	Email           string `form:"email" json:"email"`
	Password        string `form:"password" json:"password"`
	ConfirmPassword string `form:"confirm_password" json:"confirm_password"`
}

func (r ResetPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Token, validation.Required),
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Password, validation.Required, validation.Length(8, 100)),
		validation.Field(&r.ConfirmPassword, validation.Required),
	)
}

func (a *AuthController) ResetExecute(ctx router.Context) error {
	payload := new(ResetPayload)

	if err := ctx.Bind(payload); err != nil {
		return a.badRequest(ctx, err)
	}

	if err := payload.Validate(); err != nil {
		return a.invalid(ctx, FormatValidationErrorToMap(err))
	}

	err := a.Service.ResetPassword(
		ctx.Context(),
		payload.Token,
		payload.Email,
		payload.Password,
		payload.ConfirmPassword,
	)
	if err != nil {
		field := "Execution"
		if errors.Is(err, ErrPasswordMismatch) {
			field = "Confirmation"
		}
		return a.failure(ctx, field, err)
	}

	return refresh(ctx)
}

// switchSession moves the request onto sid, the session the account was just
// bound to, and discards the one the request arrived with.
func (a *AuthController) switchSession(ctx router.Context, sid string) error {
	previous := a.sessionID(ctx)

	if err := a.Cookies.Write(ctx, sid); err != nil {
		return err
	}
	ctx.SetContext(WithSessionID(ctx.Context(), sid))

	if previous != "" && previous != sid {
		if err := a.Service.DiscardSession(ctx.Context(), previous); err != nil {
			a.Logger.Error("failed to discard session %s: %v", previous, err)
		}
	}
	return nil
}

func (a *AuthController) sessionID(ctx router.Context) string {
	sid, _ := SessionIDFromContext(ctx.Context())
	return sid
}

func (a *AuthController) debug(title string, v any) {
	if !a.Debug {
		return
	}
	a.Logger.Debug("======= %s ======", title)
	a.Logger.Debug("%s", print.MaybePrettyJSON(v))
}

func (a *AuthController) badRequest(ctx router.Context, err error) error {
	a.Logger.Error("failed to parse payload: %v", err)
	return ctx.JSON(router.StatusBadRequest, map[string]any{
		"errors": map[string]string{"form": "Failed to parse form"},
	})
}

func (a *AuthController) invalid(ctx router.Context, errs map[string]string) error {
	return ctx.JSON(http.StatusUnprocessableEntity, map[string]any{
		"errors": errs,
	})
}

// failure maps expected outcomes to 422 with a localized message. Anything
// else is logged and answered with a generic 500.
func (a *AuthController) failure(ctx router.Context, field string, err error) error {
	lang := acceptLanguage(ctx)

	if IsBusinessFailure(err) {
		return a.invalid(ctx, map[string]string{field: FailureMessage(err, lang)})
	}

	if errors.Is(err, ErrAccountNotFound) {
		return ctx.JSON(http.StatusNotFound, map[string]any{
			"errors": map[string]string{field: FailureMessage(err, lang)},
		})
	}

	a.Logger.Error("%s request failed: %v", field, err)
	return ctx.JSON(router.StatusInternalServerError, map[string]any{
		"errors": map[string]string{field: FailureMessage(err, lang)},
	})
}

func refresh(ctx router.Context) error {
	return ctx.JSON(router.StatusOK, map[string]any{"status": "refresh"})
}

func acceptLanguage(ctx router.Context) string {
	return ctx.Header("Accept-Language")
}

func currentAccountID(ctx router.Context) uuid.UUID {
	if account, ok := AccountFromContext(ctx.Context()); ok {
		return account.ID
	}
	return uuid.Nil
}

// ValidateStringEquals will check that both values match
func ValidateStringEquals(str string) validation.RuleFunc {
	return func(value any) error {
		s, _ := value.(string)
		if s != str {
			return errors.New("values must match")
		}
		return nil
	}
}

// FormatValidationErrorToMap flattens ozzo validation errors into a field
// to message map.
func FormatValidationErrorToMap(err error) map[string]string {
	out := map[string]string{}
	if err == nil {
		return out
	}

	var verrs validation.Errors
	if errors.As(err, &verrs) {
		for field, ferr := range verrs {
			if ferr == nil {
				continue
			}
			out[field] = ferr.Error()
		}
		return out
	}

	out["form"] = err.Error()
	return out
}
