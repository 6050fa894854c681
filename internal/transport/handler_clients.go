package transport

import (
	"net/http"

	"github.com/billtrack/bff/internal/liststate"
	"github.com/billtrack/bff/internal/session"
	"github.com/billtrack/bff/model"
)

func clientsOf(s *session.Session) *liststate.Controller[model.Client] { return s.Clients }

func handleClientsList(deps Dependencies) http.HandlerFunc {
	return handleListFetch(deps, "clients", clientsOf, false)
}

func handleClientGet(deps Dependencies) http.HandlerFunc {
	return handleListGet(deps, "clients", "clientID", clientsOf)
}

func handleClientCreate(deps Dependencies) http.HandlerFunc {
	return handleListCreate(deps, "clients", clientsOf, nil)
}

func handleClientUpdate(deps Dependencies) http.HandlerFunc {
	return handleListUpdate(deps, "clients", "clientID", clientsOf, nil)
}

func handleClientDelete(deps Dependencies) http.HandlerFunc {
	return handleListDelete(deps, "clients", "clientID", clientsOf, nil)
}
