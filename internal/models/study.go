package models

// EmailTemplate - шаблон письма; подстановки вида ${url} разворачивает mailer.
type EmailTemplate struct {
	Subject string
	Body    string
}

// Study - конфигурация исследования: идентификатор, отображаемое имя,
// адрес поддержки и шаблоны писем workflow-процессов.
type Study struct {
	ID                    string
	Name                  string
	SupportEmail          string
	ProfileAttributes     []string
	VerifyEmailTemplate   EmailTemplate
	ResetPasswordTemplate EmailTemplate
	AccountExistsTemplate EmailTemplate
}
