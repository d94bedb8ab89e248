package i18n

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSetLanguageSwitchesTable(t *testing.T) {
	t.Cleanup(func() { SetLanguage(LangEN) })

	SetLanguage("ES")
	assert.Equal(t, LangES, GetLanguage())
	assert.Equal(t, "Apagando...", Get("ShuttingDown"))

	SetLanguage("fr")
	assert.Equal(t, LangEN, GetLanguage())
	assert.Equal(t, "Shutting down...", M().ShuttingDown)
}

func TestGetUnknownKeyReturnsKey(t *testing.T) {
	assert.Equal(t, "NoSuchMessage", Get("NoSuchMessage"))
}

func TestEveryMessageIsTranslated(t *testing.T) {
	en := reflect.ValueOf(messagesEN)
	es := reflect.ValueOf(messagesES)
	for i := 0; i < en.NumField(); i++ {
		name := en.Type().Field(i).Name
		assert.NotEmpty(t, en.Field(i).String(), "en %s", name)
		assert.NotEmpty(t, es.Field(i).String(), "es %s", name)
	}
}
