package testutil

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/meigma/portal/cid"
	"github.com/meigma/portal/hasher"
	"github.com/meigma/portal/verify/bao"
)

// DefaultUploadLimit is the fake portal's single-request upload limit.
const DefaultUploadLimit = 64 << 10

// Portal is an in-process fake of the portal HTTP API. It stores content
// in memory and serves the account, auth, upload, tus, status, download and
// proof routes.
type Portal struct {
	server *httptest.Server

	mu         sync.Mutex
	limit      uint64
	mustAuth   bool
	accounts   map[string]*account // by email
	tokens     map[string]string   // token -> email
	challenges map[string]string   // pubkey hex -> challenge
	files      map[[32]byte][]byte
	pending    map[[32]byte]int // remaining "uploading" polls
	polls      int
	sessions   map[string]*tusSession
	nextID     int
	patchFails []int64
	tamper     bool
	hits       map[string]int
}

type account struct {
	email    string
	password string
	pubkey   string
}

type tusSession struct {
	hash   [32]byte
	length int64
	data   []byte
}

// NewPortal starts a fake portal that is shut down when t finishes.
func NewPortal(t testing.TB) *Portal {
	t.Helper()
	p := &Portal{
		limit:      DefaultUploadLimit,
		accounts:   make(map[string]*account),
		tokens:     make(map[string]string),
		challenges: make(map[string]string),
		files:      make(map[[32]byte][]byte),
		pending:    make(map[[32]byte]int),
		sessions:   make(map[string]*tusSession),
		hits:       make(map[string]int),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/account/register", p.handleRegister)
	mux.HandleFunc("POST /api/v1/auth/login", p.handleLogin)
	mux.HandleFunc("POST /api/v1/auth/pubkey/challenge", p.handleChallenge)
	mux.HandleFunc("POST /api/v1/auth/pubkey/login", p.handlePubkeyLogin)
	mux.HandleFunc("POST /api/v1/auth/logout", p.handleLogout)
	mux.HandleFunc("GET /api/v1/auth/status", p.handleAuthStatus)
	mux.HandleFunc("GET /api/v1/files/upload/limit", p.authed(p.handleLimit))
	mux.HandleFunc("POST /api/v1/files/upload", p.authed(p.handleUpload))
	mux.HandleFunc("POST /api/v1/files/tus", p.authed(p.handleTusCreate))
	mux.HandleFunc("HEAD /api/v1/files/tus/{id}", p.authed(p.handleTusHead))
	mux.HandleFunc("PATCH /api/v1/files/tus/{id}", p.authed(p.handleTusPatch))
	mux.HandleFunc("GET /api/v1/files/status/{cid}", p.authed(p.handleStatus))
	mux.HandleFunc("GET /api/v1/files/download/{cid}", p.authed(p.handleDownload))
	mux.HandleFunc("GET /api/v1/files/proof/{cid}", p.authed(p.handleProof))

	p.server = httptest.NewServer(p.count(mux))
	t.Cleanup(p.server.Close)
	return p
}

// URL returns the portal base URL.
func (p *Portal) URL() string {
	return p.server.URL
}

// TusEndpoint returns the tus creation endpoint.
func (p *Portal) TusEndpoint() string {
	return p.server.URL + "/api/v1/files/tus"
}

// Client returns an HTTP client for the server.
func (p *Portal) Client() *http.Client {
	return p.server.Client()
}

// SetUploadLimit changes the limit reported by the limit route.
func (p *Portal) SetUploadLimit(n uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.limit = n
}

// RequireAuth makes every file route reject requests without a valid
// bearer token.
func (p *Portal) RequireAuth() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.mustAuth = true
}

// SetPendingPolls makes the status route answer "uploading" n times for
// each completed tus upload before answering "uploaded".
func (p *Portal) SetPendingPolls(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.polls = n
}

// FailPatches makes the next PATCH requests fail with 500 after storing the
// given number of bytes each.
func (p *Portal) FailPatches(accept ...int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.patchFails = append(p.patchFails, accept...)
}

// SetTamper makes downloads return content with one byte flipped.
func (p *Portal) SetTamper(on bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tamper = on
}

// DropSessions forgets every tus session, as a portal restart would.
func (p *Portal) DropSessions() {
	p.mu.Lock()
	defer p.mu.Unlock()
	clear(p.sessions)
}

// Put stores data directly and returns its CID text.
func (p *Portal) Put(data []byte) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.storeLocked(data)
}

// Content returns the stored content for a CID.
func (p *Portal) Content(id string) ([]byte, bool) {
	c, err := cid.Decode(id)
	if err != nil {
		return nil, false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	data, ok := p.files[c.Hash]
	return data, ok
}

// Hits returns how many requests matched pattern, for example
// "PATCH /api/v1/files/tus/{id}".
func (p *Portal) Hits(pattern string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.hits[pattern]
}

// Sessions returns the number of live tus sessions.
func (p *Portal) Sessions() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.sessions)
}

func (p *Portal) storeLocked(data []byte) string {
	sum := hasher.SumBytes(data)
	p.files[sum] = append([]byte(nil), data...)
	id, _ := cid.Encode(sum[:], uint64(len(data)))
	return id
}

func (p *Portal) count(mux *http.ServeMux) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, pattern := mux.Handler(r); pattern != "" {
			p.mu.Lock()
			p.hits[pattern]++
			p.mu.Unlock()
		}
		mux.ServeHTTP(w, r)
	})
}

func (p *Portal) authed(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p.mu.Lock()
		required := p.mustAuth
		p.mu.Unlock()
		if required && p.caller(r) == "" {
			http.Error(w, "account required", http.StatusUnauthorized)
			return
		}
		h(w, r)
	}
}

func (p *Portal) caller(r *http.Request) string {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok || token == "" {
		return ""
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tokens[token]
}

func (p *Portal) issueLocked(email string) string {
	token := randomHex(16)
	p.tokens[token] = email
	return token
}

func (p *Portal) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
		Pubkey   string `json:"pubkey"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Email == "" || (req.Password == "" && req.Pubkey == "") {
		http.Error(w, "email and password or pubkey required", http.StatusBadRequest)
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.accounts[req.Email]; ok {
		http.Error(w, "account exists", http.StatusConflict)
		return
	}
	p.accounts[req.Email] = &account{email: req.Email, password: req.Password, pubkey: req.Pubkey}
	w.WriteHeader(http.StatusOK)
}

func (p *Portal) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	p.mu.Lock()
	acct, ok := p.accounts[req.Email]
	if !ok || acct.password == "" || acct.password != req.Password {
		p.mu.Unlock()
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return
	}
	token := p.issueLocked(acct.email)
	p.mu.Unlock()
	writeJSON(w, map[string]string{"token": token})
}

func (p *Portal) handleChallenge(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Pubkey string `json:"pubkey"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	p.mu.Lock()
	challenge := randomHex(32)
	p.challenges[req.Pubkey] = challenge
	p.mu.Unlock()
	writeJSON(w, map[string]string{"challenge": challenge})
}

func (p *Portal) handlePubkeyLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Pubkey    string `json:"pubkey"`
		Challenge string `json:"challenge"`
		Signature string `json:"signature"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	pub, err := hex.DecodeString(req.Pubkey)
	if err != nil || len(pub) != ed25519.PublicKeySize {
		http.Error(w, "bad pubkey", http.StatusBadRequest)
		return
	}
	sig, err := hex.DecodeString(req.Signature)
	if err != nil {
		http.Error(w, "bad signature", http.StatusBadRequest)
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	want, ok := p.challenges[req.Pubkey]
	if !ok || want != req.Challenge || !ed25519.Verify(pub, []byte(req.Challenge), sig) {
		http.Error(w, "challenge failed", http.StatusUnauthorized)
		return
	}
	delete(p.challenges, req.Pubkey)
	for _, acct := range p.accounts {
		if acct.pubkey == req.Pubkey {
			writeJSON(w, map[string]string{"token": p.issueLocked(acct.email)})
			return
		}
	}
	http.Error(w, "no account for pubkey", http.StatusUnauthorized)
}

func (p *Portal) handleLogout(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token string `json:"token"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	p.mu.Lock()
	delete(p.tokens, req.Token)
	p.mu.Unlock()
	w.WriteHeader(http.StatusOK)
}

func (p *Portal) handleAuthStatus(w http.ResponseWriter, r *http.Request) {
	if p.caller(r) == "" {
		http.Error(w, "not logged in", http.StatusUnauthorized)
		return
	}
	writeJSON(w, map[string]bool{"status": true})
}

func (p *Portal) handleLimit(w http.ResponseWriter, _ *http.Request) {
	p.mu.Lock()
	limit := p.limit
	p.mu.Unlock()
	writeJSON(w, map[string]uint64{"limit": limit})
}

func (p *Portal) handleUpload(w http.ResponseWriter, r *http.Request) {
	f, _, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "missing file field", http.StatusBadRequest)
		return
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	p.mu.Lock()
	if uint64(len(data)) > p.limit {
		p.mu.Unlock()
		http.Error(w, "file too large", http.StatusRequestEntityTooLarge)
		return
	}
	id := p.storeLocked(data)
	p.mu.Unlock()
	writeJSON(w, map[string]string{"cid": id})
}

func (p *Portal) handleTusCreate(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("Tus-Resumable") != "1.0.0" {
		http.Error(w, "unsupported tus version", http.StatusPreconditionFailed)
		return
	}
	length, err := strconv.ParseInt(r.Header.Get("Upload-Length"), 10, 64)
	if err != nil || length <= 0 {
		http.Error(w, "bad Upload-Length", http.StatusBadRequest)
		return
	}
	hash, ok := metadataHash(r.Header.Get("Upload-Metadata"))
	if !ok {
		http.Error(w, "missing hash metadata", http.StatusBadRequest)
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.files[hash]; exists {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	p.nextID++
	id := strconv.Itoa(p.nextID)
	p.sessions[id] = &tusSession{hash: hash, length: length}
	w.Header().Set("Tus-Resumable", "1.0.0")
	w.Header().Set("Location", "/api/v1/files/tus/"+id)
	w.WriteHeader(http.StatusCreated)
}

func (p *Portal) handleTusHead(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	defer p.mu.Unlock()
	sess, ok := p.sessions[r.PathValue("id")]
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	w.Header().Set("Tus-Resumable", "1.0.0")
	w.Header().Set("Upload-Offset", strconv.Itoa(len(sess.data)))
	w.Header().Set("Upload-Length", strconv.FormatInt(sess.length, 10))
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
}

func (p *Portal) handleTusPatch(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("Content-Type") != "application/offset+octet-stream" {
		http.Error(w, "bad content type", http.StatusUnsupportedMediaType)
		return
	}
	offset, err := strconv.ParseInt(r.Header.Get("Upload-Offset"), 10, 64)
	if err != nil {
		http.Error(w, "bad Upload-Offset", http.StatusBadRequest)
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	id := r.PathValue("id")
	sess, ok := p.sessions[id]
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if offset != int64(len(sess.data)) {
		http.Error(w, "offset mismatch", http.StatusConflict)
		return
	}
	if offset+int64(len(body)) > sess.length {
		http.Error(w, "body exceeds Upload-Length", http.StatusBadRequest)
		return
	}

	if len(p.patchFails) > 0 {
		accept := min(p.patchFails[0], int64(len(body)))
		p.patchFails = p.patchFails[1:]
		sess.data = append(sess.data, body[:accept]...)
		http.Error(w, "injected failure", http.StatusInternalServerError)
		return
	}

	sess.data = append(sess.data, body...)
	if int64(len(sess.data)) == sess.length {
		if hasher.SumBytes(sess.data) != sess.hash {
			delete(p.sessions, id)
			http.Error(w, "hash mismatch", http.StatusBadRequest)
			return
		}
		p.storeLocked(sess.data)
		p.pending[sess.hash] = p.polls
		delete(p.sessions, id)
	}
	w.Header().Set("Tus-Resumable", "1.0.0")
	w.Header().Set("Upload-Offset", strconv.FormatInt(offset+int64(len(body)), 10))
	w.WriteHeader(http.StatusNoContent)
}

func (p *Portal) handleStatus(w http.ResponseWriter, r *http.Request) {
	c, ok := parseCID(w, r)
	if !ok {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	status := "not_found"
	if _, stored := p.files[c.Hash]; stored {
		status = "uploaded"
		if n := p.pending[c.Hash]; n > 0 {
			p.pending[c.Hash] = n - 1
			status = "uploading"
		}
	} else {
		for _, sess := range p.sessions {
			if sess.hash == c.Hash {
				status = "uploading"
				break
			}
		}
	}
	writeJSON(w, map[string]string{"status": status})
}

func (p *Portal) handleDownload(w http.ResponseWriter, r *http.Request) {
	data, ok := p.lookup(w, r)
	if !ok {
		return
	}
	p.mu.Lock()
	tamper := p.tamper
	p.mu.Unlock()
	if tamper && len(data) > 0 {
		data = append([]byte(nil), data...)
		data[len(data)/2] ^= 0xff
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	_, _ = w.Write(data)
}

func (p *Portal) handleProof(w http.ResponseWriter, r *http.Request) {
	data, ok := p.lookup(w, r)
	if !ok {
		return
	}
	proof, _ := bao.Encode(data)
	w.Header().Set("Content-Type", "application/octet-stream")
	_, _ = w.Write(proof)
}

func (p *Portal) lookup(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	c, ok := parseCID(w, r)
	if !ok {
		return nil, false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	data, stored := p.files[c.Hash]
	if !stored {
		http.Error(w, "not found", http.StatusNotFound)
		return nil, false
	}
	return data, true
}

func parseCID(w http.ResponseWriter, r *http.Request) (cid.CID, bool) {
	c, err := cid.Decode(r.PathValue("cid"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return cid.CID{}, false
	}
	return c, true
}

// metadataHash extracts the "hash" key from an Upload-Metadata header.
func metadataHash(header string) ([32]byte, bool) {
	var hash [32]byte
	for pair := range strings.SplitSeq(header, ",") {
		key, value, _ := strings.Cut(strings.TrimSpace(pair), " ")
		if key != "hash" {
			continue
		}
		raw, err := base64.StdEncoding.DecodeString(value)
		if err != nil {
			return hash, false
		}
		b, err := hex.DecodeString(string(raw))
		if err != nil || len(b) != len(hash) {
			return hash, false
		}
		copy(hash[:], b)
		return hash, true
	}
	return hash, false
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, fmt.Sprintf("bad request body: %v", err), http.StatusBadRequest)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func randomHex(n int) string {
	b := make([]byte, n)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
