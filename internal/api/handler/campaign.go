package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/castcle/wallet-engine/internal/domain"
	"github.com/castcle/wallet-engine/internal/models"
	"github.com/castcle/wallet-engine/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CampaignHandler exposes reward claims and the admin campaign surface.
// Claims answer 202 regardless of outcome; whether a reward was granted is
// visible only through the ledger.
type CampaignHandler struct {
	svc *service.CampaignService
}

func NewCampaignHandler(svc *service.CampaignService) *CampaignHandler {
	return &CampaignHandler{svc: svc}
}

type claimMobileRequest struct {
	CountryCode  string `json:"countryCode"`
	MobileNumber string `json:"mobileNumber"`
}

// ClaimMobileVerification handles POST /v1/campaigns/verify-mobile/claims.
func (h *CampaignHandler) ClaimMobileVerification(w http.ResponseWriter, r *http.Request) {
	actorID, _, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/unauthorized", "Unauthorized")
		return
	}

	var req claimMobileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "Invalid request body")
		return
	}
	if req.MobileNumber == "" {
		RespondError(w, r, http.StatusBadRequest, "request/missing-mobile", "mobileNumber is required")
		return
	}

	if err := h.svc.ClaimMobileVerification(r.Context(), actorID, req.CountryCode, req.MobileNumber); err != nil {
		zap.L().Error("mobile verification claim failed", zap.Error(err), zap.String("owner_id", actorID.String()))
		RespondError(w, r, http.StatusInternalServerError, "campaign/claim-failed", "Failed to process claim")
		return
	}

	RespondJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

type claimReferralRequest struct {
	ReferrerID string `json:"referrerId"`
}

// ClaimFriendReferral handles POST /v1/campaigns/referral/claims. The
// authenticated user is the referred party.
func (h *CampaignHandler) ClaimFriendReferral(w http.ResponseWriter, r *http.Request) {
	actorID, _, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/unauthorized", "Unauthorized")
		return
	}

	var req claimReferralRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "Invalid request body")
		return
	}
	referrerID, err := uuid.Parse(req.ReferrerID)
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-referrer", "invalid referrerId")
		return
	}
	if referrerID == actorID {
		RespondError(w, r, http.StatusBadRequest, "request/self-referral", "cannot refer yourself")
		return
	}

	if err := h.svc.ClaimFriendReferral(r.Context(), referrerID, actorID); err != nil {
		zap.L().Error("referral claim failed", zap.Error(err), zap.String("owner_id", actorID.String()))
		RespondError(w, r, http.StatusInternalServerError, "campaign/claim-failed", "Failed to process claim")
		return
	}

	RespondJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

type createCampaignRequest struct {
	Type            string     `json:"type"`
	RewardBalance   string     `json:"rewardBalance"`
	RewardsPerClaim string     `json:"rewardsPerClaim"`
	MaxClaims       int32      `json:"maxClaims"`
	StartDate       time.Time  `json:"startDate"`
	EndDate         *time.Time `json:"endDate,omitempty"`
	Visibility      string     `json:"visibility,omitempty"`
}

// CreateCampaign handles POST /v1/campaigns (admin only).
func (h *CampaignHandler) CreateCampaign(w http.ResponseWriter, r *http.Request) {
	var req createCampaignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "Invalid request body")
		return
	}

	ctype := domain.CampaignType(req.Type)
	switch ctype {
	case domain.CampaignFriendReferral, domain.CampaignVerifyMobile:
	default:
		RespondError(w, r, http.StatusBadRequest, "request/invalid-campaign-type", "unknown campaign type")
		return
	}

	budget, err := domain.ParseAmount(req.RewardBalance)
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-budget", "invalid rewardBalance")
		return
	}
	perClaim, err := domain.ParseAmount(req.RewardsPerClaim)
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-reward", "invalid rewardsPerClaim")
		return
	}

	campaign, err := h.svc.CreateCampaign(r.Context(), service.CreateCampaignRequest{
		Type:            ctype,
		RewardBalance:   budget,
		RewardsPerClaim: perClaim,
		MaxClaims:       req.MaxClaims,
		StartDate:       req.StartDate,
		EndDate:         req.EndDate,
		Visibility:      req.Visibility,
	})
	if err != nil {
		if status, pType, msg, ok := mapDBError(err); ok {
			RespondError(w, r, status, pType, msg)
			return
		}
		zap.L().Error("create campaign failed", zap.Error(err))
		RespondError(w, r, http.StatusInternalServerError, "campaign/create-failed", "Failed to create campaign")
		return
	}

	RespondJSON(w, http.StatusCreated, campaign)
}

// GetCampaign handles GET /v1/campaigns/{id} (admin only).
func (h *CampaignHandler) GetCampaign(w http.ResponseWriter, r *http.Request) {
	campaignID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-campaign-id", "Invalid campaign ID")
		return
	}

	campaign, err := h.svc.GetCampaign(r.Context(), campaignID)
	if err != nil {
		if errors.Is(err, models.ErrCampaignNotFound) {
			RespondError(w, r, http.StatusNotFound, "campaign/not-found", "Campaign not found")
			return
		}
		zap.L().Error("get campaign failed", zap.Error(err), zap.String("campaign_id", campaignID.String()))
		RespondError(w, r, http.StatusInternalServerError, "campaign/read-failed", "Failed to get campaign")
		return
	}

	RespondJSON(w, http.StatusOK, campaign)
}
