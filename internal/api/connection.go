package api

import (
	"encoding/json"
	"net/http"

	"github.com/Kalashnok/fire-alarm/internal/infrastructure/config"
)

// updateConnectionRequest is the body for PUT /connection.
// The password is accepted on input but never echoed back.
type updateConnectionRequest struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	TLS      bool   `json:"tls"`
	ClientID string `json:"client_id"`
	Username string `json:"username"`
	Password string `json:"password"`
	QoS      int    `json:"qos"`
}

// connectionResponse reports broker settings and session state.
type connectionResponse struct {
	config.BrokerConfig
	Connected     bool `json:"connected"`
	Subscriptions int  `json:"subscriptions"`
}

// handleGetConnection returns the current broker configuration and
// connection state. The password is excluded by the config's JSON tags.
func (s *Server) handleGetConnection(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, connectionResponse{
		BrokerConfig:  s.session.BrokerConfig(),
		Connected:     s.session.IsConnected(),
		Subscriptions: s.session.ActiveSubscriptions(),
	})
}

// handleUpdateConnection validates and applies new broker settings.
// A live session reconnects with the new parameters; the settings are
// persisted so they survive restarts.
func (s *Server) handleUpdateConnection(w http.ResponseWriter, r *http.Request) {
	var req updateConnectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	cfg := config.BrokerConfig{
		Host:     req.Host,
		Port:     req.Port,
		TLS:      req.TLS,
		ClientID: req.ClientID,
		Username: req.Username,
		Password: req.Password,
		QoS:      req.QoS,
	}
	if cfg.ClientID == "" {
		cfg.ClientID = config.GenerateClientID()
	}
	// Runtime updates keep the file-configured backoff.
	cfg.Reconnect = s.session.BrokerConfig().Reconnect

	if err := cfg.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
		return
	}

	if s.brokerStore != nil {
		if err := s.brokerStore.Save(r.Context(), cfg); err != nil {
			s.logger.Warn("persisting broker config failed", "error", err)
		}
	}

	if err := s.session.UpdateBrokerConfig(r.Context(), cfg); err != nil {
		writeError(w, http.StatusBadGateway, ErrCodeInternal, err.Error())
		return
	}

	s.handleGetConnection(w, r)
}

// handleConnect opens a broker session with the current configuration.
func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	if err := s.session.Connect(r.Context()); err != nil {
		writeError(w, http.StatusBadGateway, ErrCodeInternal, err.Error())
		return
	}
	s.handleGetConnection(w, r)
}

// handleDisconnect tears the broker session down.
func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	s.session.Disconnect()
	s.handleGetConnection(w, r)
}
