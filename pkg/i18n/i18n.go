package i18n

import (
	"reflect"
	"strings"
	"sync"
)

// Language type
type Language string

const (
	LangEN Language = "en"
	LangES Language = "es"
)

// Messages holds all translatable strings
type Messages struct {
	// System
	Starting           string
	ConfigLoaded       string
	UsingDatabase      string
	DryRunMode         string
	LiveMode           string
	ConfigLoadFailed   string
	DBInitFailed       string
	DBMigrationsFailed string
	StateLoadFailed    string
	ShuttingDown       string
	ShutdownComplete   string

	// Engine
	PairsConfigured      string
	ActiveTradesRestored string
	StreamingEnabled     string
	PollingEnabled       string
	CacheFallback        string

	// Sentiment
	SentimentEnabled  string
	SentimentDisabled string

	// API
	ServerListening string
	APIDisabled     string
	APIServerError  string
	AuthDisabled    string
}

var (
	currentLang Language = LangEN
	mu          sync.RWMutex
	messages    *Messages
)

// English messages
var messagesEN = Messages{
	// System
	Starting:           "botnext starting...",
	ConfigLoaded:       "Config loaded: interval=%s cycle=%s",
	UsingDatabase:      "Using %s database",
	DryRunMode:         "DRY-RUN mode: orders fill against the paper exchange",
	LiveMode:           "LIVE mode: orders are sent to Binance.US",
	ConfigLoadFailed:   "failed to load config: %v",
	DBInitFailed:       "failed to init db: %v",
	DBMigrationsFailed: "failed to apply migrations: %v",
	StateLoadFailed:    "failed to load active trades: %v",
	ShuttingDown:       "Shutting down...",
	ShutdownComplete:   "Shutdown complete",

	// Engine
	PairsConfigured:      "Trading pairs: %s",
	ActiveTradesRestored: "Restored %d active trade(s)",
	StreamingEnabled:     "Kline streaming enabled",
	PollingEnabled:       "Streaming disabled, snapshots refresh over REST",
	CacheFallback:        "Redis unavailable, using in-memory cache: %v",

	// Sentiment
	SentimentEnabled:  "Sentiment provider: %s",
	SentimentDisabled: "Sentiment disabled, using technical weights",

	// API
	ServerListening: "Dashboard API listening on :%d",
	APIDisabled:     "Dashboard API disabled",
	APIServerError:  "API server error: %v",
	AuthDisabled:    "No admin password hash set, control endpoints are locked",
}

// Spanish messages
var messagesES = Messages{
	// System
	Starting:           "botnext iniciando...",
	ConfigLoaded:       "Configuración cargada: intervalo=%s ciclo=%s",
	UsingDatabase:      "Usando base de datos %s",
	DryRunMode:         "Modo DRY-RUN: las órdenes se ejecutan en el exchange simulado",
	LiveMode:           "Modo REAL: las órdenes se envían a Binance.US",
	ConfigLoadFailed:   "no se pudo cargar la configuración: %v",
	DBInitFailed:       "no se pudo iniciar la base de datos: %v",
	DBMigrationsFailed: "no se pudieron aplicar las migraciones: %v",
	StateLoadFailed:    "no se pudieron cargar las operaciones activas: %v",
	ShuttingDown:       "Apagando...",
	ShutdownComplete:   "Apagado completo",

	// Engine
	PairsConfigured:      "Pares de trading: %s",
	ActiveTradesRestored: "%d operación(es) activa(s) restaurada(s)",
	StreamingEnabled:     "Streaming de velas activado",
	PollingEnabled:       "Streaming desactivado, los snapshots se actualizan por REST",
	CacheFallback:        "Redis no disponible, usando caché en memoria: %v",

	// Sentiment
	SentimentEnabled:  "Proveedor de sentimiento: %s",
	SentimentDisabled: "Sentimiento desactivado, usando pesos técnicos",

	// API
	ServerListening: "API del panel escuchando en :%d",
	APIDisabled:     "API del panel desactivada",
	APIServerError:  "error del servidor API: %v",
	AuthDisabled:    "Sin hash de contraseña de administrador, los endpoints de control están bloqueados",
}

func init() {
	messages = &messagesEN
}

// SetLanguage sets the current language
func SetLanguage(lang Language) {
	mu.Lock()
	defer mu.Unlock()

	switch Language(strings.ToLower(string(lang))) {
	case LangES:
		currentLang = LangES
		messages = &messagesES
	default:
		currentLang = LangEN
		messages = &messagesEN
	}
}

// GetLanguage returns the current language
func GetLanguage() Language {
	mu.RLock()
	defer mu.RUnlock()
	return currentLang
}

// M returns the current messages
func M() *Messages {
	mu.RLock()
	defer mu.RUnlock()
	return messages
}

// Get returns specific message by key dynamically using reflection
func Get(key string) string {
	msg := M()
	v := reflect.ValueOf(msg).Elem()
	f := v.FieldByName(key)
	if f.IsValid() && f.Kind() == reflect.String {
		return f.String()
	}
	return key
}
