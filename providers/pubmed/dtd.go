package pubmed

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	entityDeclRE = regexp.MustCompile(`<!ENTITY\s+([^\s%"]+)\s+"([^"]*)"\s*>`)
	charRefRE    = regexp.MustCompile(`&#(x[0-9a-fA-F]+|[0-9]+);`)
	quotedRE     = regexp.MustCompile(`"([^"]*)"|'([^']*)'`)
)

// DTDResolver lädt DTD-Dateien einmalig herunter, legt sie unter Dir ab und
// liefert ihre allgemeinen Entitäten für den XML-Decoder.
type DTDResolver struct {
	Dir    string
	Client *http.Client
	Logger *zap.Logger

	mu    sync.RWMutex
	cache map[string]map[string]string
}

// NewDTDResolver erstellt einen Resolver mit lokalem Cache-Verzeichnis.
func NewDTDResolver(dir string, logger *zap.Logger) *DTDResolver {
	return &DTDResolver{
		Dir:    dir,
		Client: &http.Client{Timeout: 60 * time.Second},
		Logger: logger,
		cache:  make(map[string]map[string]string),
	}
}

// Entities liefert die Entitäten der DTD unter systemID. Gleichzeitige erste
// Zugriffe laden die Datei nur einmal.
func (r *DTDResolver) Entities(ctx context.Context, systemID string) (map[string]string, error) {
	r.mu.RLock()
	ents, ok := r.cache[systemID]
	r.mu.RUnlock()
	if ok {
		return ents, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if ents, ok := r.cache[systemID]; ok {
		return ents, nil
	}

	data, err := r.load(ctx, systemID)
	if err != nil {
		return nil, err
	}
	ents = ParseEntities(data)
	r.cache[systemID] = ents
	return ents, nil
}

// load liest die DTD aus dem lokalen Cache oder lädt sie herunter.
func (r *DTDResolver) load(ctx context.Context, systemID string) ([]byte, error) {
	local := filepath.Join(r.Dir, dtdFileName(systemID))
	if data, err := os.ReadFile(local); err == nil {
		return data, nil
	}

	u, err := url.Parse(systemID)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, fmt.Errorf("dtd: unsupported system id %q", systemID)
	}

	r.Logger.Info("Lade DTD herunter", zap.String("url", systemID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, systemID, nil)
	if err != nil {
		return nil, err
	}
	resp, err := r.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("dtd download: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("dtd download %s: status %d", systemID, resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(r.Dir, 0o755); err != nil {
		return nil, err
	}
	tmp := local + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return nil, err
	}
	return data, os.Rename(tmp, local)
}

// dtdFileName leitet aus der URL einen eindeutigen, dateisystemtauglichen Namen ab.
func dtdFileName(systemID string) string {
	if u, err := url.Parse(systemID); err == nil && u.Host != "" {
		systemID = u.Host + u.Path
	}
	return strings.NewReplacer("/", "_", ":", "_", "\\", "_").Replace(systemID)
}

// ParseEntities liest <!ENTITY name "wert">-Deklarationen. Parameter-Entitäten
// und externe Entitäten werden übergangen.
func ParseEntities(dtd []byte) map[string]string {
	ents := make(map[string]string)
	for _, m := range entityDeclRE.FindAllSubmatch(dtd, -1) {
		ents[string(m[1])] = decodeCharRefs(string(m[2]))
	}
	return ents
}

func decodeCharRefs(s string) string {
	return charRefRE.ReplaceAllStringFunc(s, func(ref string) string {
		num := ref[2 : len(ref)-1]
		base := 10
		if num[0] == 'x' {
			num, base = num[1:], 16
		}
		n, err := strconv.ParseInt(num, base, 32)
		if err != nil {
			return ref
		}
		return string(rune(n))
	})
}

// doctypeSystemID liest die System-ID aus <!DOCTYPE ... PUBLIC "pub" "sys"> bzw. SYSTEM "sys".
func doctypeSystemID(d xml.Directive) string {
	s := string(d)
	if !strings.HasPrefix(s, "DOCTYPE") {
		return ""
	}
	var quoted []string
	for _, m := range quotedRE.FindAllStringSubmatch(s, -1) {
		quoted = append(quoted, m[1]+m[2])
	}
	switch {
	case strings.Contains(s, " PUBLIC ") && len(quoted) >= 2:
		return quoted[1]
	case strings.Contains(s, " SYSTEM ") && len(quoted) >= 1:
		return quoted[0]
	}
	return ""
}
