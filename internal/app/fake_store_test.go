package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"cabinet/api/internal/paginate"
	"cabinet/api/internal/search"
	"cabinet/api/internal/store"
	"cabinet/api/internal/tenant"
	"cabinet/api/internal/util"
)

// memStore is an in-memory dataStore and sessionStore. It follows the
// tenant rules of the Postgres store: rows of another company are reported
// as store.ErrNotFound.
type memStore struct {
	mu sync.Mutex

	clock      time.Time
	pingErr    error
	companyErr error

	companies   map[string]store.Company
	users       map[string]store.User
	sessions    map[string]string
	candidates  []*store.Candidate
	languages   []store.Language
	experiences []store.Experience
	formations  []store.Formation
	tags        []store.Tag
	candTags    map[string][]string
	clients     []*store.ClientCompany
	contacts    []*store.Contact
	offers      []*store.JobOffer
	links       map[string][]string
	notes       []*store.Note
	invitations []*store.Invitation
}

func newMemStore() *memStore {
	return &memStore{
		clock:     time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC),
		companies: map[string]store.Company{},
		users:     map[string]store.User{},
		sessions:  map[string]string{},
		candTags:  map[string][]string{},
		links:     map[string][]string{},
	}
}

// tick returns strictly increasing timestamps so ordering is deterministic.
func (m *memStore) tick() time.Time {
	m.clock = m.clock.Add(time.Second)
	return m.clock
}

func requireScope(scope tenant.Scope) error {
	if !scope.Valid() {
		return tenant.ErrNoTenant
	}
	return nil
}

func (m *memStore) Ping(context.Context) error { return m.pingErr }

func (m *memStore) CompanyOfUser(_ context.Context, userID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.companyErr != nil {
		return "", m.companyErr
	}
	u, ok := m.users[userID]
	if !ok {
		return "", store.ErrNotFound
	}
	return u.CompanyID, nil
}

func (m *memStore) GetUserByID(_ context.Context, userID string) (store.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return store.User{}, store.ErrNotFound
	}
	return u, nil
}

func (m *memStore) GetUserByEmail(_ context.Context, email string) (store.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if strings.EqualFold(u.Email, email) {
			return u, nil
		}
	}
	return store.User{}, store.ErrNotFound
}

func (m *memStore) emailTaken(email string) bool {
	for _, u := range m.users {
		if strings.EqualFold(u.Email, strings.TrimSpace(email)) {
			return true
		}
	}
	return false
}

func (m *memStore) EmailTaken(_ context.Context, email string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.emailTaken(email), nil
}

func (m *memStore) Register(_ context.Context, reg store.Registration) (store.Registration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.companies {
		if c.Siret == reg.Company.Siret {
			return store.Registration{}, &store.ConflictError{Constraint: "companies_siret_key"}
		}
	}
	if m.emailTaken(reg.User.Email) {
		return store.Registration{}, &store.ConflictError{Constraint: "users_email_key"}
	}
	reg.Company.CreatedAt = m.tick()
	reg.User.CompanyID = reg.Company.ID
	reg.User.CreatedAt = reg.Company.CreatedAt
	m.companies[reg.Company.ID] = reg.Company
	m.users[reg.User.ID] = reg.User
	return reg, nil
}

// addMember seeds a company (when new) and a user in it.
func (m *memStore) addMember(companyID, name, email, passwordHash string) store.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.companies[companyID]; !ok {
		m.companies[companyID] = store.Company{ID: companyID, Name: "Cabinet " + companyID[:4], Siret: fmt.Sprintf("%014d", len(m.companies)+1), CreatedAt: m.tick()}
	}
	u := store.User{ID: util.NewID(), CompanyID: companyID, Email: email, Name: name, PasswordHash: passwordHash, CreatedAt: m.tick()}
	m.users[u.ID] = u
	return u
}

func (m *memStore) GetCompany(_ context.Context, scope tenant.Scope) (store.Company, error) {
	if err := requireScope(scope); err != nil {
		return store.Company{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.companies[scope.CompanyID()]
	if !ok {
		return store.Company{}, store.ErrNotFound
	}
	return c, nil
}

func (m *memStore) ListMembers(_ context.Context, scope tenant.Scope) ([]store.User, error) {
	if err := requireScope(scope); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []store.User{}
	for _, u := range m.users {
		if u.CompanyID == scope.CompanyID() {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *memStore) SaveRefreshSession(_ context.Context, tokenHash, userID string, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[tokenHash] = userID
	return nil
}

func (m *memStore) ConsumeRefreshSession(_ context.Context, tokenHash string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	userID, ok := m.sessions[tokenHash]
	if !ok {
		return "", store.ErrNotFound
	}
	delete(m.sessions, tokenHash)
	return userID, nil
}

func (m *memStore) RevokeRefreshSession(_ context.Context, tokenHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, tokenHash)
	return nil
}

// candidates

func (m *memStore) candidate(scope tenant.Scope, id string) (*store.Candidate, error) {
	if err := requireScope(scope); err != nil {
		return nil, err
	}
	for _, c := range m.candidates {
		if c.ID == id && c.CompanyID == scope.CompanyID() {
			return c, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *memStore) ListCandidates(_ context.Context, scope tenant.Scope, filter store.CandidateFilter, cursor paginate.Cursor) (paginate.Page[store.CandidateListItem], error) {
	if err := requireScope(scope); err != nil {
		return paginate.Page[store.CandidateListItem]{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var rows []store.CandidateListItem
	for i := len(m.candidates) - 1; i >= 0; i-- {
		c := m.candidates[i]
		if c.CompanyID != scope.CompanyID() {
			continue
		}
		if filter.Search != "" && !strings.Contains(strings.ToLower(c.FirstName+" "+c.LastName), strings.ToLower(filter.Search)) {
			continue
		}
		if filter.City != "" && (c.City == nil || !strings.EqualFold(*c.City, filter.City)) {
			continue
		}
		rows = append(rows, store.CandidateListItem{Candidate: *c, Tags: []store.CandidateTag{}, Languages: []store.Language{}})
	}
	if cursor.After != "" {
		at := -1
		for i, r := range rows {
			if r.ID == cursor.After {
				at = i
			}
		}
		if at < 0 {
			return paginate.Page[store.CandidateListItem]{}, store.ErrInvalidCursor
		}
		rows = rows[at+1:]
	}
	if len(rows) > cursor.FetchSize() {
		rows = rows[:cursor.FetchSize()]
	}
	return paginate.Trim(rows, cursor.Limit, func(r store.CandidateListItem) string { return r.ID }), nil
}

func (m *memStore) CreateCandidate(_ context.Context, scope tenant.Scope, f store.CandidateFields) (store.Candidate, error) {
	if err := requireScope(scope); err != nil {
		return store.Candidate{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.tick()
	c := &store.Candidate{
		ID: util.NewID(), CompanyID: scope.CompanyID(),
		FirstName: f.FirstName, LastName: f.LastName, Title: f.Title, Email: f.Email, Phone: f.Phone,
		City: f.City, LinkedinURL: f.LinkedinURL, Summary: f.Summary,
		CreatedAt: now, UpdatedAt: now,
	}
	m.candidates = append(m.candidates, c)
	return *c, nil
}

func (m *memStore) GetCandidate(_ context.Context, scope tenant.Scope, id string) (store.Candidate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, err := m.candidate(scope, id)
	if err != nil {
		return store.Candidate{}, err
	}
	return *c, nil
}

func (m *memStore) GetCandidateDetail(_ context.Context, scope tenant.Scope, id string) (store.CandidateDetail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, err := m.candidate(scope, id)
	if err != nil {
		return store.CandidateDetail{}, err
	}
	d := store.CandidateDetail{Candidate: *c, Languages: []store.Language{}, Experiences: []store.Experience{}, Formations: []store.Formation{}, Tags: []store.CandidateTag{}}
	for _, l := range m.languages {
		if l.CandidateID == id {
			d.Languages = append(d.Languages, l)
		}
	}
	for _, e := range m.experiences {
		if e.CandidateID == id {
			d.Experiences = append(d.Experiences, e)
		}
	}
	for _, f := range m.formations {
		if f.CandidateID == id {
			d.Formations = append(d.Formations, f)
		}
	}
	for _, tagID := range m.candTags[id] {
		for _, t := range m.tags {
			if t.ID == tagID {
				d.Tags = append(d.Tags, store.CandidateTag{CandidateID: id, ID: t.ID, Name: t.Name})
			}
		}
	}
	return d, nil
}

func textValue(v any) *string {
	if v == nil {
		return nil
	}
	s := v.(string)
	return &s
}

func (m *memStore) UpdateCandidate(_ context.Context, scope tenant.Scope, id string, changes store.Changes) (store.Candidate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, err := m.candidate(scope, id)
	if err != nil {
		return store.Candidate{}, err
	}
	for _, ch := range changes {
		switch ch.Column {
		case "first_name":
			c.FirstName = ch.Value.(string)
		case "last_name":
			c.LastName = ch.Value.(string)
		case "title":
			c.Title = textValue(ch.Value)
		case "email":
			c.Email = textValue(ch.Value)
		case "phone":
			c.Phone = textValue(ch.Value)
		case "city":
			c.City = textValue(ch.Value)
		case "linkedin_url":
			c.LinkedinURL = textValue(ch.Value)
		case "summary":
			c.Summary = textValue(ch.Value)
		default:
			return store.Candidate{}, fmt.Errorf("column %q cannot be updated", ch.Column)
		}
	}
	c.UpdatedAt = m.tick()
	return *c, nil
}

func (m *memStore) DeleteCandidate(_ context.Context, scope tenant.Scope, id string) (store.Candidate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, err := m.candidate(scope, id)
	if err != nil {
		return store.Candidate{}, err
	}
	kept := m.candidates[:0]
	for _, other := range m.candidates {
		if other.ID != id {
			kept = append(kept, other)
		}
	}
	m.candidates = kept
	return *c, nil
}

func (m *memStore) SetCandidatePhoto(_ context.Context, scope tenant.Scope, id string, key *string) (*string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, err := m.candidate(scope, id)
	if err != nil {
		return nil, err
	}
	previous := c.PhotoKey
	c.PhotoKey = key
	return previous, nil
}

func (m *memStore) SetCandidateCV(_ context.Context, scope tenant.Scope, id string, key, fileName *string) (*string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, err := m.candidate(scope, id)
	if err != nil {
		return nil, err
	}
	previous := c.CVKey
	c.CVKey, c.CVFileName = key, fileName
	return previous, nil
}

func (m *memStore) ListDistinctCities(_ context.Context, scope tenant.Scope) ([]string, error) {
	if err := requireScope(scope); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := map[string]bool{}
	out := []string{}
	for _, c := range m.candidates {
		if c.CompanyID == scope.CompanyID() && c.City != nil && !seen[*c.City] {
			seen[*c.City] = true
			out = append(out, *c.City)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (m *memStore) ListDistinctLanguageNames(_ context.Context, scope tenant.Scope) ([]string, error) {
	if err := requireScope(scope); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := map[string]bool{}
	out := []string{}
	for _, l := range m.languages {
		if _, err := m.candidate(scope, l.CandidateID); err == nil && !seen[l.Name] {
			seen[l.Name] = true
			out = append(out, l.Name)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (m *memStore) AddLanguage(_ context.Context, scope tenant.Scope, candidateID, name, level string) (store.Language, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, err := m.candidate(scope, candidateID); err != nil {
		return store.Language{}, err
	}
	l := store.Language{ID: util.NewID(), CandidateID: candidateID, Name: name, Level: level, CreatedAt: m.tick()}
	m.languages = append(m.languages, l)
	return l, nil
}

func (m *memStore) RemoveLanguage(_ context.Context, scope tenant.Scope, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, l := range m.languages {
		if l.ID != id {
			continue
		}
		if _, err := m.candidate(scope, l.CandidateID); err != nil {
			return err
		}
		m.languages = append(m.languages[:i], m.languages[i+1:]...)
		return nil
	}
	return store.ErrNotFound
}

func (m *memStore) AddExperience(_ context.Context, scope tenant.Scope, candidateID string, f store.ExperienceFields) (store.Experience, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, err := m.candidate(scope, candidateID); err != nil {
		return store.Experience{}, err
	}
	e := store.Experience{ID: util.NewID(), CandidateID: candidateID, Title: f.Title, Company: f.Company,
		StartDate: f.StartDate, EndDate: f.EndDate, Description: f.Description, CreatedAt: m.tick()}
	m.experiences = append(m.experiences, e)
	return e, nil
}

func (m *memStore) UpdateExperience(_ context.Context, scope tenant.Scope, id string, f store.ExperienceFields) (store.Experience, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, e := range m.experiences {
		if e.ID != id {
			continue
		}
		if _, err := m.candidate(scope, e.CandidateID); err != nil {
			return store.Experience{}, err
		}
		e.Title, e.Company, e.StartDate, e.EndDate, e.Description = f.Title, f.Company, f.StartDate, f.EndDate, f.Description
		m.experiences[i] = e
		return e, nil
	}
	return store.Experience{}, store.ErrNotFound
}

func (m *memStore) DeleteExperience(_ context.Context, scope tenant.Scope, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, e := range m.experiences {
		if e.ID != id {
			continue
		}
		if _, err := m.candidate(scope, e.CandidateID); err != nil {
			return err
		}
		m.experiences = append(m.experiences[:i], m.experiences[i+1:]...)
		return nil
	}
	return store.ErrNotFound
}

func (m *memStore) AddFormation(_ context.Context, scope tenant.Scope, candidateID string, f store.FormationFields) (store.Formation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, err := m.candidate(scope, candidateID); err != nil {
		return store.Formation{}, err
	}
	fm := store.Formation{ID: util.NewID(), CandidateID: candidateID, Degree: f.Degree, Field: f.Field,
		School: f.School, StartDate: f.StartDate, EndDate: f.EndDate, CreatedAt: m.tick()}
	m.formations = append(m.formations, fm)
	return fm, nil
}

func (m *memStore) UpdateFormation(_ context.Context, scope tenant.Scope, id string, f store.FormationFields) (store.Formation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, fm := range m.formations {
		if fm.ID != id {
			continue
		}
		if _, err := m.candidate(scope, fm.CandidateID); err != nil {
			return store.Formation{}, err
		}
		fm.Degree, fm.Field, fm.School, fm.StartDate, fm.EndDate = f.Degree, f.Field, f.School, f.StartDate, f.EndDate
		m.formations[i] = fm
		return fm, nil
	}
	return store.Formation{}, store.ErrNotFound
}

func (m *memStore) DeleteFormation(_ context.Context, scope tenant.Scope, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, fm := range m.formations {
		if fm.ID != id {
			continue
		}
		if _, err := m.candidate(scope, fm.CandidateID); err != nil {
			return err
		}
		m.formations = append(m.formations[:i], m.formations[i+1:]...)
		return nil
	}
	return store.ErrNotFound
}

func (m *memStore) AddTag(_ context.Context, scope tenant.Scope, candidateID, name string) (store.Tag, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, err := m.candidate(scope, candidateID); err != nil {
		return store.Tag{}, err
	}
	var tag *store.Tag
	for i := range m.tags {
		if m.tags[i].CompanyID == scope.CompanyID() && m.tags[i].Name == name {
			tag = &m.tags[i]
		}
	}
	if tag == nil {
		m.tags = append(m.tags, store.Tag{ID: util.NewID(), CompanyID: scope.CompanyID(), Name: name, CreatedAt: m.tick()})
		tag = &m.tags[len(m.tags)-1]
	}
	for _, id := range m.candTags[candidateID] {
		if id == tag.ID {
			return *tag, nil
		}
	}
	if len(m.candTags[candidateID]) >= store.MaxTagsPerCandidate {
		return store.Tag{}, store.ErrTagLimit
	}
	m.candTags[candidateID] = append(m.candTags[candidateID], tag.ID)
	tag.UsageCount++
	return *tag, nil
}

func (m *memStore) RemoveTag(_ context.Context, scope tenant.Scope, candidateID, tagID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, err := m.candidate(scope, candidateID); err != nil {
		return err
	}
	ids := m.candTags[candidateID]
	for i, id := range ids {
		if id == tagID {
			m.candTags[candidateID] = append(ids[:i], ids[i+1:]...)
			return nil
		}
	}
	return store.ErrNotFound
}

func (m *memStore) ListTags(_ context.Context, scope tenant.Scope) ([]store.Tag, error) {
	if err := requireScope(scope); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []store.Tag{}
	for _, t := range m.tags {
		if t.CompanyID == scope.CompanyID() {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// client companies

func (m *memStore) client(scope tenant.Scope, id string) (*store.ClientCompany, error) {
	if err := requireScope(scope); err != nil {
		return nil, err
	}
	for _, c := range m.clients {
		if c.ID == id && c.CompanyID == scope.CompanyID() {
			return c, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *memStore) ListClientCompanies(_ context.Context, scope tenant.Scope, search string) ([]store.ClientCompany, error) {
	if err := requireScope(scope); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []store.ClientCompany{}
	for _, c := range m.clients {
		if c.CompanyID == scope.CompanyID() && strings.Contains(strings.ToLower(c.Name), strings.ToLower(search)) {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *memStore) CreateClientCompany(_ context.Context, scope tenant.Scope, f store.ClientCompanyFields) (store.ClientCompany, error) {
	if err := requireScope(scope); err != nil {
		return store.ClientCompany{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.tick()
	c := &store.ClientCompany{ID: util.NewID(), CompanyID: scope.CompanyID(), Name: f.Name, Sector: f.Sector,
		Website: f.Website, City: f.City, CreatedAt: now, UpdatedAt: now}
	m.clients = append(m.clients, c)
	return *c, nil
}

func (m *memStore) GetClientCompany(_ context.Context, scope tenant.Scope, id string) (store.ClientCompany, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, err := m.client(scope, id)
	if err != nil {
		return store.ClientCompany{}, err
	}
	return *c, nil
}

func (m *memStore) GetClientCompanyDetail(_ context.Context, scope tenant.Scope, id string) (store.ClientCompanyDetail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, err := m.client(scope, id)
	if err != nil {
		return store.ClientCompanyDetail{}, err
	}
	d := store.ClientCompanyDetail{ClientCompany: *c, Contacts: []store.Contact{}, Offers: []store.JobOffer{}}
	for _, ct := range m.contacts {
		if ct.ClientCompanyID == id {
			d.Contacts = append(d.Contacts, *ct)
		}
	}
	for _, o := range m.offers {
		if o.ClientCompanyID != nil && *o.ClientCompanyID == id {
			d.Offers = append(d.Offers, *o)
		}
	}
	return d, nil
}

// contact resolves a contact through its client company, like the SQL join.
func (m *memStore) contact(scope tenant.Scope, id string) (*store.Contact, error) {
	if err := requireScope(scope); err != nil {
		return nil, err
	}
	for _, ct := range m.contacts {
		if ct.ID != id {
			continue
		}
		if _, err := m.client(scope, ct.ClientCompanyID); err != nil {
			return nil, err
		}
		return ct, nil
	}
	return nil, store.ErrNotFound
}

func (m *memStore) GetContact(_ context.Context, scope tenant.Scope, id string) (store.Contact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ct, err := m.contact(scope, id)
	if err != nil {
		return store.Contact{}, err
	}
	return *ct, nil
}

func (m *memStore) CreateContact(_ context.Context, scope tenant.Scope, clientCompanyID string, f store.ContactFields) (store.Contact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cc, err := m.client(scope, clientCompanyID)
	if err != nil {
		return store.Contact{}, err
	}
	now := m.tick()
	ct := &store.Contact{ID: util.NewID(), ClientCompanyID: cc.ID, CompanyID: cc.CompanyID, FirstName: f.FirstName,
		LastName: f.LastName, Email: f.Email, Phone: f.Phone, Position: f.Position, CreatedAt: now, UpdatedAt: now}
	m.contacts = append(m.contacts, ct)
	cc.ContactCount++
	return *ct, nil
}

func (m *memStore) UpdateContact(_ context.Context, scope tenant.Scope, id string, changes store.Changes) (store.Contact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ct, err := m.contact(scope, id)
	if err != nil {
		return store.Contact{}, err
	}
	for _, ch := range changes {
		switch ch.Column {
		case "first_name":
			ct.FirstName = ch.Value.(string)
		case "last_name":
			ct.LastName = ch.Value.(string)
		case "email":
			ct.Email = textValue(ch.Value)
		case "phone":
			ct.Phone = textValue(ch.Value)
		case "position":
			ct.Position = textValue(ch.Value)
		default:
			return store.Contact{}, fmt.Errorf("column %q cannot be updated", ch.Column)
		}
	}
	ct.UpdatedAt = m.tick()
	return *ct, nil
}

// offers

func (m *memStore) offer(scope tenant.Scope, id string) (*store.JobOffer, error) {
	if err := requireScope(scope); err != nil {
		return nil, err
	}
	for _, o := range m.offers {
		if o.ID == id && o.CompanyID == scope.CompanyID() {
			return o, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *memStore) ListOffers(_ context.Context, scope tenant.Scope, filter store.OfferFilter, page paginate.Offset) ([]store.JobOffer, int, error) {
	if err := requireScope(scope); err != nil {
		return nil, 0, err
	}
	orderBy, err := page.OrderBy(store.OfferSortColumns, "createdAt", "o.id")
	if err != nil {
		return nil, 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	term := strings.ToLower(filter.Search)
	matched := []store.JobOffer{}
	for _, o := range m.offers {
		if o.CompanyID != scope.CompanyID() {
			continue
		}
		if filter.Status != "" && o.Status != filter.Status {
			continue
		}
		if filter.ClientCompanyID != "" && (o.ClientCompanyID == nil || *o.ClientCompanyID != filter.ClientCompanyID) {
			continue
		}
		if term != "" && !strings.Contains(strings.ToLower(o.Title), term) &&
			(o.Description == nil || !strings.Contains(strings.ToLower(*o.Description), term)) {
			continue
		}
		matched = append(matched, *o)
	}

	key := page.SortBy
	if key == "" {
		key = "createdAt"
	}
	asc := strings.HasSuffix(orderBy, " ASC")
	compare := func(a, b store.JobOffer) int {
		switch key {
		case "title":
			return strings.Compare(a.Title, b.Title)
		case "status":
			return strings.Compare(a.Status, b.Status)
		case "updatedAt":
			return a.UpdatedAt.Compare(b.UpdatedAt)
		default:
			return a.CreatedAt.Compare(b.CreatedAt)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		c := compare(matched[i], matched[j])
		if c == 0 {
			c = strings.Compare(matched[i].ID, matched[j].ID)
		}
		if asc {
			return c < 0
		}
		return c > 0
	})

	total := len(matched)
	from := min(page.Skip(), total)
	to := min(from+page.Limit(), total)
	return matched[from:to], total, nil
}

func (m *memStore) GetOffer(_ context.Context, scope tenant.Scope, id string) (store.JobOffer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, err := m.offer(scope, id)
	if err != nil {
		return store.JobOffer{}, err
	}
	return *o, nil
}

func (m *memStore) GetOfferDetail(_ context.Context, scope tenant.Scope, id string) (store.OfferDetail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, err := m.offer(scope, id)
	if err != nil {
		return store.OfferDetail{}, err
	}
	d := store.OfferDetail{JobOffer: *o, Candidates: []store.LinkedCandidate{}}
	if o.ClientCompanyID != nil {
		if cc, err := m.client(scope, *o.ClientCompanyID); err == nil {
			copied := *cc
			d.ClientCompany = &copied
		}
	}
	if o.ClientContactID != nil {
		if ct, err := m.contact(scope, *o.ClientContactID); err == nil {
			copied := *ct
			d.ClientContact = &copied
		}
	}
	for _, candidateID := range m.links[id] {
		if c, err := m.candidate(scope, candidateID); err == nil {
			d.Candidates = append(d.Candidates, store.LinkedCandidate{ID: c.ID, FirstName: c.FirstName, LastName: c.LastName, Title: c.Title})
		}
	}
	return d, nil
}

func (m *memStore) CreateOffer(_ context.Context, scope tenant.Scope, f store.OfferFields) (store.JobOffer, error) {
	if err := requireScope(scope); err != nil {
		return store.JobOffer{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.tick()
	o := &store.JobOffer{ID: util.NewID(), CompanyID: scope.CompanyID(), Title: f.Title, Description: f.Description,
		Status: f.Status, Location: f.Location, ClientCompanyID: f.ClientCompanyID, ClientContactID: f.ClientContactID,
		CreatedAt: now, UpdatedAt: now}
	m.offers = append(m.offers, o)
	return *o, nil
}

func (m *memStore) UpdateOffer(_ context.Context, scope tenant.Scope, id string, changes store.Changes) (store.JobOffer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, err := m.offer(scope, id)
	if err != nil {
		return store.JobOffer{}, err
	}
	for _, ch := range changes {
		switch ch.Column {
		case "title":
			o.Title = ch.Value.(string)
		case "description":
			o.Description = textValue(ch.Value)
		case "status":
			o.Status = ch.Value.(string)
		case "location":
			o.Location = textValue(ch.Value)
		case "client_company_id":
			o.ClientCompanyID = textValue(ch.Value)
		case "client_contact_id":
			o.ClientContactID = textValue(ch.Value)
		default:
			return store.JobOffer{}, fmt.Errorf("column %q cannot be updated", ch.Column)
		}
	}
	o.UpdatedAt = m.tick()
	return *o, nil
}

func (m *memStore) DeleteOffer(_ context.Context, scope tenant.Scope, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, err := m.offer(scope, id); err != nil {
		return err
	}
	kept := m.offers[:0]
	for _, o := range m.offers {
		if o.ID != id {
			kept = append(kept, o)
		}
	}
	m.offers = kept
	delete(m.links, id)
	notes := m.notes[:0]
	for _, n := range m.notes {
		if n.JobOfferID == nil || *n.JobOfferID != id {
			notes = append(notes, n)
		}
	}
	m.notes = notes
	return nil
}

func (m *memStore) LinkCandidate(_ context.Context, scope tenant.Scope, offerID, candidateID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, err := m.offer(scope, offerID); err != nil {
		return err
	}
	if _, err := m.candidate(scope, candidateID); err != nil {
		return err
	}
	for _, id := range m.links[offerID] {
		if id == candidateID {
			return nil
		}
	}
	m.links[offerID] = append(m.links[offerID], candidateID)
	return nil
}

func (m *memStore) UnlinkCandidate(_ context.Context, scope tenant.Scope, offerID, candidateID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, err := m.offer(scope, offerID); err != nil {
		return err
	}
	ids := m.links[offerID]
	for i, id := range ids {
		if id == candidateID {
			m.links[offerID] = append(ids[:i], ids[i+1:]...)
			return nil
		}
	}
	return store.ErrNotFound
}

// notes

func (m *memStore) checkTarget(scope tenant.Scope, target store.NoteTarget) error {
	if target.CandidateID != "" {
		if _, err := m.candidate(scope, target.CandidateID); err != nil {
			return err
		}
	}
	if target.JobOfferID != "" {
		if _, err := m.offer(scope, target.JobOfferID); err != nil {
			return err
		}
	}
	return nil
}

func (m *memStore) ListNotes(_ context.Context, scope tenant.Scope, target store.NoteTarget) ([]store.Note, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := requireScope(scope); err != nil {
		return nil, err
	}
	if err := m.checkTarget(scope, target); err != nil {
		return nil, err
	}
	out := []store.Note{}
	for i := len(m.notes) - 1; i >= 0; i-- {
		n := m.notes[i]
		if n.CompanyID != scope.CompanyID() {
			continue
		}
		if (target.CandidateID != "" && n.CandidateID != nil && *n.CandidateID == target.CandidateID) ||
			(target.JobOfferID != "" && n.JobOfferID != nil && *n.JobOfferID == target.JobOfferID) {
			out = append(out, *n)
		}
	}
	return out, nil
}

func (m *memStore) ListFreeNotes(_ context.Context, scope tenant.Scope, cursor paginate.Cursor) (paginate.Page[store.Note], error) {
	if err := requireScope(scope); err != nil {
		return paginate.Page[store.Note]{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var rows []store.Note
	for i := len(m.notes) - 1; i >= 0; i-- {
		n := m.notes[i]
		if n.CompanyID == scope.CompanyID() && n.CandidateID == nil && n.JobOfferID == nil {
			rows = append(rows, *n)
		}
	}
	if cursor.After != "" {
		at := -1
		for i, r := range rows {
			if r.ID == cursor.After {
				at = i
			}
		}
		if at < 0 {
			return paginate.Page[store.Note]{}, store.ErrInvalidCursor
		}
		rows = rows[at+1:]
	}
	return paginate.Trim(rows, cursor.Limit, func(n store.Note) string { return n.ID }), nil
}

func (m *memStore) GetNote(_ context.Context, scope tenant.Scope, id string) (store.Note, error) {
	if err := requireScope(scope); err != nil {
		return store.Note{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, n := range m.notes {
		if n.ID == id && n.CompanyID == scope.CompanyID() {
			return *n, nil
		}
	}
	return store.Note{}, store.ErrNotFound
}

func (m *memStore) CreateNote(_ context.Context, scope tenant.Scope, target store.NoteTarget, content json.RawMessage) (store.Note, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := requireScope(scope); err != nil {
		return store.Note{}, err
	}
	if err := m.checkTarget(scope, target); err != nil {
		return store.Note{}, err
	}
	now := m.tick()
	n := &store.Note{ID: util.NewID(), CompanyID: scope.CompanyID(), AuthorID: scope.UserID(),
		AuthorName: m.users[scope.UserID()].Name, Content: content, CreatedAt: now, UpdatedAt: now}
	if target.CandidateID != "" {
		n.CandidateID = &target.CandidateID
	}
	if target.JobOfferID != "" {
		n.JobOfferID = &target.JobOfferID
	}
	m.notes = append(m.notes, n)
	return *n, nil
}

// authored mirrors the author_id guard of the SQL update and delete.
func (m *memStore) authored(scope tenant.Scope, id string) (int, error) {
	if err := requireScope(scope); err != nil {
		return -1, err
	}
	for i, n := range m.notes {
		if n.ID == id && n.CompanyID == scope.CompanyID() && n.AuthorID == scope.UserID() {
			return i, nil
		}
	}
	return -1, store.ErrNotFound
}

func (m *memStore) UpdateNoteContent(_ context.Context, scope tenant.Scope, id string, content json.RawMessage) (store.Note, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i, err := m.authored(scope, id)
	if err != nil {
		return store.Note{}, err
	}
	m.notes[i].Content = content
	m.notes[i].UpdatedAt = m.tick()
	return *m.notes[i], nil
}

func (m *memStore) DeleteNote(_ context.Context, scope tenant.Scope, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	i, err := m.authored(scope, id)
	if err != nil {
		return err
	}
	m.notes = append(m.notes[:i], m.notes[i+1:]...)
	return nil
}

func (m *memStore) noteContent(id string) json.RawMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, n := range m.notes {
		if n.ID == id {
			return n.Content
		}
	}
	return nil
}

// invitations

func (m *memStore) HasActiveInvitation(_ context.Context, scope tenant.Scope, email string, now time.Time) (bool, error) {
	if err := requireScope(scope); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, inv := range m.invitations {
		if inv.CompanyID == scope.CompanyID() && strings.EqualFold(inv.Email, email) && inv.Status(now) == store.InvitationActive {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) CreateInvitation(_ context.Context, scope tenant.Scope, email, token string, expiresAt time.Time) (store.Invitation, error) {
	if err := requireScope(scope); err != nil {
		return store.Invitation{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	createdBy := scope.UserID()
	inv := &store.Invitation{ID: util.NewID(), CompanyID: scope.CompanyID(), CompanyName: m.companies[scope.CompanyID()].Name,
		Email: strings.ToLower(email), Token: token, ExpiresAt: expiresAt, CreatedBy: &createdBy, CreatedAt: m.tick()}
	m.invitations = append(m.invitations, inv)
	return *inv, nil
}

func (m *memStore) ListInvitations(_ context.Context, scope tenant.Scope, activeOnly bool, now time.Time) ([]store.Invitation, error) {
	if err := requireScope(scope); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []store.Invitation{}
	for i := len(m.invitations) - 1; i >= 0; i-- {
		inv := m.invitations[i]
		if inv.CompanyID != scope.CompanyID() || (activeOnly && inv.Status(now) != store.InvitationActive) {
			continue
		}
		out = append(out, *inv)
	}
	return out, nil
}

func (m *memStore) invitation(match func(*store.Invitation) bool) (*store.Invitation, error) {
	for _, inv := range m.invitations {
		if match(inv) {
			return inv, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *memStore) GetInvitation(_ context.Context, scope tenant.Scope, id string) (store.Invitation, error) {
	if err := requireScope(scope); err != nil {
		return store.Invitation{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, err := m.invitation(func(i *store.Invitation) bool { return i.ID == id && i.CompanyID == scope.CompanyID() })
	if err != nil {
		return store.Invitation{}, err
	}
	return *inv, nil
}

func (m *memStore) GetInvitationByToken(_ context.Context, token string) (store.Invitation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, err := m.invitation(func(i *store.Invitation) bool { return i.Token == token })
	if err != nil {
		return store.Invitation{}, err
	}
	return *inv, nil
}

func (m *memStore) RevokeInvitation(_ context.Context, scope tenant.Scope, id string, now time.Time) (store.Invitation, error) {
	if err := requireScope(scope); err != nil {
		return store.Invitation{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, err := m.invitation(func(i *store.Invitation) bool {
		return i.ID == id && i.CompanyID == scope.CompanyID() && i.Status(now) == store.InvitationActive
	})
	if err != nil {
		return store.Invitation{}, err
	}
	inv.RevokedAt = &now
	return *inv, nil
}

func (m *memStore) AcceptInvitation(_ context.Context, invitationID string, user store.User, now time.Time) (store.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, err := m.invitation(func(i *store.Invitation) bool {
		return i.ID == invitationID && i.Status(now) == store.InvitationActive
	})
	if errors.Is(err, store.ErrNotFound) {
		return store.User{}, store.ErrAlreadyUsed
	}
	if m.emailTaken(user.Email) {
		return store.User{}, &store.ConflictError{Constraint: "users_email_key"}
	}
	inv.UsedAt = &now
	user.CompanyID = inv.CompanyID
	user.CreatedAt = m.tick()
	m.users[user.ID] = user
	return user, nil
}

func (m *memStore) setInvitationExpiry(token string, expiresAt time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, inv := range m.invitations {
		if inv.Token == token {
			inv.ExpiresAt = expiresAt
		}
	}
}

func (m *memStore) offerCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.offers)
}

func (m *memStore) candidateCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.candidates)
}

// fakeSearcher matches candidate names in memory.
type fakeSearcher struct {
	store *memStore
}

func (f *fakeSearcher) Candidates(_ context.Context, scope tenant.Scope, pattern string, limit int) ([]search.Hit, error) {
	needle := strings.ToLower(strings.Trim(pattern, "%"))
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	var hits []search.Hit
	for _, c := range f.store.candidates {
		if c.CompanyID != scope.CompanyID() || len(hits) == limit {
			continue
		}
		if strings.Contains(strings.ToLower(c.FirstName+" "+c.LastName), needle) {
			hits = append(hits, search.Hit{Type: search.ResultCandidate, ID: c.ID, Title: c.FirstName + " " + c.LastName})
		}
	}
	return hits, nil
}

func (f *fakeSearcher) Offers(context.Context, tenant.Scope, string, int) ([]search.Hit, error) {
	return nil, nil
}
