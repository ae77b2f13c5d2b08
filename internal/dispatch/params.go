package dispatch

import (
	"errors"
	"strconv"

	"github.com/go-playground/validator/v10"

	"github.com/rmitchellscott/nixpdf/internal/apperr"
	"github.com/rmitchellscott/nixpdf/internal/pdfops"
)

const (
	MsgDegrees       = "Degrees must be 90, 180, 270, or 360"
	MsgOpacity       = "Opacity must be between 0 and 1"
	MsgPasswordShort = "Password must be at least 6 characters"
	MsgPasswordEmpty = "Password required"
	MsgPosition      = "Position must be bottom-left, bottom-center, or bottom-right"
	MsgSplitMode     = "Mode must be burst or ranges"
	MsgWatermarkText = "Watermark text must be at most 200 characters"
	MsgPageRange     = "Page range is too long"
)

var validate = validator.New()

type splitParams struct {
	Mode  string `validate:"omitempty,oneof=burst ranges"`
	Pages string `validate:"max=1024"`
}

type rotateParams struct {
	Degrees int `validate:"oneof=90 180 270 360"`
}

type watermarkParams struct {
	Text    string  `validate:"max=200"`
	Opacity float64 `validate:"gte=0,lte=1"`
}

type protectParams struct {
	Password string `validate:"required,min=6"`
}

type unlockParams struct {
	Password string `validate:"required"`
}

type pageNumberParams struct {
	Position string `validate:"oneof=bottom-left bottom-center bottom-right"`
}

func parseSplit(p Params) (splitParams, error) {
	out := splitParams{Mode: p.Get("mode"), Pages: p.Get("pages")}
	return out, check(out)
}

func parseRotate(p Params) (rotateParams, error) {
	out := rotateParams{Degrees: 90}
	if s := p.Get("degrees"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			return out, invalid(MsgDegrees)
		}
		out.Degrees = n
	}
	return out, check(out)
}

func parseWatermark(p Params) (watermarkParams, error) {
	out := watermarkParams{Text: p.Get("text"), Opacity: pdfops.DefaultWatermarkOpacity}
	if out.Text == "" {
		out.Text = pdfops.DefaultWatermarkText
	}
	if s := p.Get("opacity"); s != "" {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return out, invalid(MsgOpacity)
		}
		out.Opacity = f
	}
	return out, check(out)
}

// Passwords are taken verbatim; surrounding spaces are significant.
func parseProtect(p Params) (protectParams, error) {
	out := protectParams{Password: p["password"]}
	return out, check(out)
}

func parseUnlock(p Params) (unlockParams, error) {
	out := unlockParams{Password: p["password"]}
	return out, check(out)
}

func parsePageNumbers(p Params) (pageNumberParams, error) {
	pos, ok := pdfops.ParsePosition(p.Get("position"))
	if !ok {
		return pageNumberParams{}, invalid(MsgPosition)
	}
	out := pageNumberParams{Position: string(pos)}
	return out, check(out)
}

func check(v interface{}) error {
	if err := validate.Struct(v); err != nil {
		return invalid(validationErrorMessage(err))
	}
	return nil
}

func invalid(msg string) error {
	return apperr.Validation(CodeInvalidParameter, msg)
}

// validationErrorMessage returns a user-friendly validation error message.
func validationErrorMessage(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, ve := range verrs {
			switch ve.Field() {
			case "Degrees":
				return MsgDegrees
			case "Opacity":
				return MsgOpacity
			case "Password":
				if ve.Tag() == "required" {
					return MsgPasswordEmpty
				}
				return MsgPasswordShort
			case "Position":
				return MsgPosition
			case "Mode":
				return MsgSplitMode
			case "Text":
				return MsgWatermarkText
			case "Pages":
				return MsgPageRange
			}
		}
	}
	return "Invalid request"
}
