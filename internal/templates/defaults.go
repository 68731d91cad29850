package templates

import "github.com/youthclub/notification-queue/internal/model"

// Built-in texts carry no placeholders so they render with any payload.
var defaults = map[model.Category]string{
	model.Registration: "Olá! Recebemos o cadastro no Clube de Aventureiros. " +
		"Em breve a diretoria entrará em contato com os próximos passos.",
	model.LeadershipRegistration: "Olá! Seu cadastro na diretoria do Clube de Aventureiros foi recebido. " +
		"Obrigado por servir conosco.",
	model.SignupConfirmation: "Olá! A inscrição foi confirmada. " +
		"Confira os detalhes no portal do Clube de Aventureiros.",
	model.Finance: "Olá! Confirmamos o recebimento do seu pagamento. " +
		"Obrigado por manter a mensalidade em dia.",
	model.General: "Olá! Há uma nova mensagem do Clube de Aventureiros para você no portal.",
	model.Test:    "Mensagem de teste do Clube de Aventureiros. Se você recebeu, as notificações estão funcionando.",
}

// keys documents the placeholders a stored template may use per category.
var keys = map[model.Category][]string{
	model.Registration:           {"guardian_name", "child_name"},
	model.LeadershipRegistration: {"name"},
	model.SignupConfirmation:     {"guardian_name", "child_name", "event"},
	model.Finance:                {"guardian_name", "child_name", "amount", "reference"},
	model.General:                {"name", "message"},
	model.Test:                   {},
}

// Default returns the built-in text for c, or the general text when c has
// none of its own.
func Default(c model.Category) string {
	if text, ok := defaults[c]; ok {
		return text
	}
	return defaults[model.General]
}

// Keys returns the placeholder names documented for c.
func Keys(c model.Category) []string {
	out := make([]string, len(keys[c]))
	copy(out, keys[c])
	return out
}
