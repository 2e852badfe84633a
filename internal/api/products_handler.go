package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gridworks/catalogbridge/internal/auth"
	"github.com/gridworks/catalogbridge/internal/catalog"
	"github.com/gridworks/catalogbridge/internal/domain"
)

// ProductsHandler serves the paginated product listing.
type ProductsHandler struct {
	catalog *catalog.Service
}

func NewProductsHandler(catalogService *catalog.Service) *ProductsHandler {
	return &ProductsHandler{catalog: catalogService}
}

func (h *ProductsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	perms := auth.PermissionsFromContext(r.Context())
	if !perms.Read {
		writeError(w, domain.ErrCannotView)
		return
	}

	req, err := parseListRequest(r)
	if err != nil {
		writeError(w, domain.NewAPIError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	result, err := h.catalog.List(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("X-Total", strconv.Itoa(result.Total))
	w.Header().Set("X-Total-Pages", strconv.Itoa(result.TotalPages))
	setLinkHeader(w, r, result)

	writeJSON(w, http.StatusOK, result.Items)
}

func parseListRequest(r *http.Request) (catalog.ListRequest, error) {
	q := r.URL.Query()
	req := catalog.ListRequest{
		Search: strings.TrimSpace(q.Get("search")),
	}

	if raw := q.Get("filters"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &req.Filters); err != nil {
			return req, fmt.Errorf("invalid filters parameter: %w", err)
		}
	}

	if raw := q.Get("sort"); raw != "" {
		var sort domain.SortOption
		if err := json.Unmarshal([]byte(raw), &sort); err != nil {
			return req, fmt.Errorf("invalid sort parameter: %w", err)
		}
		req.Sort = &sort
	} else if field := q.Get("orderby"); field != "" {
		req.Sort = &domain.SortOption{Field: field, Direction: q.Get("order")}
	}

	if raw := q.Get("fields"); raw != "" {
		for _, field := range strings.Split(raw, ",") {
			if field = strings.TrimSpace(field); field != "" {
				req.Fields = append(req.Fields, field)
			}
		}
	}

	req.Page, _ = strconv.Atoi(q.Get("page"))
	req.PerPage, _ = strconv.Atoi(q.Get("per_page"))

	return req, nil
}

// setLinkHeader advertises prev/next pages; boundary pages omit the
// corresponding relation.
func setLinkHeader(w http.ResponseWriter, r *http.Request, result catalog.ListResult) {
	var links []string

	pageURL := func(page int) string {
		u := *r.URL
		q := u.Query()
		q.Set("page", strconv.Itoa(page))
		u.RawQuery = q.Encode()
		return u.String()
	}

	if result.PrevPage > 0 {
		links = append(links, fmt.Sprintf("<%s>; rel=\"prev\"", pageURL(result.PrevPage)))
	}
	if result.NextPage > 0 {
		links = append(links, fmt.Sprintf("<%s>; rel=\"next\"", pageURL(result.NextPage)))
	}
	if len(links) > 0 {
		w.Header().Set("Link", strings.Join(links, ", "))
	}
}
