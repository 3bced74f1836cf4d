package forms

import "net/url"

var messageFields = []string{"body"}

type MessageForm struct {
	Body string `form:"body" validate:"required,length=1:1000"`

	Errors Errors `form:"-" validate:"-"`
	values url.Values
}

func NewMessageForm(values url.Values) *MessageForm {
	return &MessageForm{values: values, Errors: newErrors(messageFields)}
}

func (f *MessageForm) Validate() bool {
	bind(f, f.values, &f.Errors, nil)
	return !f.Errors.Any()
}

var loginFields = []string{"username", "password"}

type LoginForm struct {
	Username string `form:"username" validate:"required"`
	Password string `form:"password" validate:"required"`

	Errors Errors `form:"-" validate:"-"`
	values url.Values
}

func NewLoginForm(values url.Values) *LoginForm {
	return &LoginForm{values: values, Errors: newErrors(loginFields)}
}

func (f *LoginForm) Validate() bool {
	bind(f, f.values, &f.Errors, nil)
	return !f.Errors.Any()
}
