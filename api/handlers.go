package api

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/bnb-chain/chain-tracker/entity"
	"github.com/bnb-chain/chain-tracker/service"
	"github.com/bnb-chain/chain-tracker/util"
)

func HandleGetSnapshot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, service.ChainSvc.GetSnapshot())
}

func HandleGetBlockByHash(w http.ResponseWriter, r *http.Request) {
	block, err := service.ChainSvc.GetBlockByHash(mux.Vars(r)["hash"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, block)
}

func HandleGetFinalizedBlockByHeight(w http.ResponseWriter, r *http.Request) {
	height, err := util.StringToUint64(mux.Vars(r)["height"])
	if err != nil {
		writeError(w, service.ErrInvalidBlockID)
		return
	}
	block, err := service.ChainSvc.GetFinalizedBlockByHeight(height)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, block)
}

func Error(err error) (int64, string) {
	switch e := err.(type) {
	case service.Err:
		return e.Code, e.Message
	case nil:
		return service.NoErr.Code, service.NoErr.Message
	default:
		return service.InternalErr.Code, err.Error()
	}
}

func writeError(w http.ResponseWriter, err error) {
	code, message := Error(err)
	status := http.StatusInternalServerError
	switch code {
	case service.ErrBlockNotFound.Code:
		status = http.StatusNotFound
	case service.ErrInvalidBlockID.Code:
		status = http.StatusBadRequest
	}
	writeJSON(w, status, &entity.Error{Code: code, Message: message})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
