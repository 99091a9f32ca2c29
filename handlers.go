package main

import (
	"errors"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/panudet-24mb/market-management/models"
	"github.com/panudet-24mb/market-management/pkg/capture"
	"github.com/panudet-24mb/market-management/pkg/recognize"
	"github.com/panudet-24mb/market-management/pkg/reconcile"
	"github.com/panudet-24mb/market-management/pkg/storage"
)

var (
	logger  zerolog.Logger
	cfg     *Config
	store   storage.Store
	pipe    *recognize.Pipeline
	session *capture.Session
)

func setupRoutes(r *gin.Engine) {
	r.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:    []string{"Origin", "Content-Type", "Authorization"},
	}))

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.POST("/register", registerHandler)
	r.POST("/login", loginHandler)
	r.Static("/uploads", cfg.Storage.UploadBase)

	authGroup := r.Group("")
	authGroup.Use(jwtAuthMiddleware())
	authGroup.GET("/meters", listMetersHandler)
	authGroup.POST("/meters", createMeterHandler)
	authGroup.GET("/meter_usages/:meter_id/:month", getUsageHandler)
	authGroup.GET("/meter_usages_month/:month", monthRowsHandler)
	authGroup.GET("/meter_usages_month/:month/export", exportMonthHandler)
	authGroup.POST("/meter_usages", createUsagesHandler)
	authGroup.PUT("/meter_usages/update", bulkUpdateHandler)
	authGroup.POST("/meter_usage", meterUsageShimHandler)
	authGroup.POST("/upload_bill", uploadBillHandler)
	authGroup.POST("/recognized/", recognizedHandler)
	authGroup.POST("/capture/snap", captureSnapHandler)
	authGroup.POST("/capture/digit", captureDigitHandler)
}

func registerHandler(c *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := registerUser(req.Username, req.Password); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "registered"})
}

func loginHandler(c *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	user, err := authenticate(req.Username, req.Password)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}
	token, err := issueToken(user)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to sign token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token, "username": user.Username})
}

func listMetersHandler(c *gin.Context) {
	var meters []models.Meter
	if err := db.Where("deleted_at IS NULL").Order("asset_tag").Find(&meters).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, meters)
}

func createMeterHandler(c *gin.Context) {
	var req struct {
		Type     models.MeterType `json:"meter_type" binding:"required"`
		Number   string           `json:"meter_number" binding:"required"`
		Serial   string           `json:"meter_serial"`
		AssetTag string           `json:"asset_tag" binding:"required"`
		Note     string           `json:"note"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !models.ValidMeterType(req.Type) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "meter_type must be WATER or ELECTRIC"})
		return
	}
	meter := models.Meter{
		Type:     req.Type,
		Number:   req.Number,
		Serial:   req.Serial,
		AssetTag: strings.TrimSpace(req.AssetTag),
		Note:     req.Note,
	}
	if err := db.Create(&meter).Error; err != nil {
		if isUniqueConstraintError(err) {
			c.JSON(http.StatusConflict, gin.H{"error": "asset_tag already registered"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, meter)
}

func getUsageHandler(c *gin.Context) {
	meterID, err := strconv.ParseUint(c.Param("meter_id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid meter_id"})
		return
	}
	month := c.Param("month")
	if !models.ValidMonth(month) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid month, want YYYY-MM"})
		return
	}
	var usage models.MeterUsage
	err = db.Where("meter_id = ? AND month = ? AND deleted_at IS NULL", meterID, month).First(&usage).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "no usage recorded for that month"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, usage)
}

func monthRowsHandler(c *gin.Context) {
	rows, err := loadMonthRows(c.Param("month"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"month": c.Param("month"), "data": rows})
}

func createUsagesHandler(c *gin.Context) {
	var req []struct {
		MeterID    uint   `json:"meter_id" binding:"required"`
		Month      string `json:"month" binding:"required"`
		MeterStart int64  `json:"meter_start"`
		MeterEnd   *int64 `json:"meter_end"`
		Note       string `json:"note"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(req) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "empty payload"})
		return
	}
	var created []models.MeterUsage
	err := db.Transaction(func(tx *gorm.DB) error {
		for _, e := range req {
			u, err := createUsage(tx, e.MeterID, e.Month, e.MeterStart, e.MeterEnd, e.Note, "")
			if err != nil {
				return err
			}
			created = append(created, *u)
		}
		return nil
	})
	if err != nil {
		if isUniqueConstraintError(err) {
			c.JSON(http.StatusConflict, gin.H{"error": "usage already recorded for that month"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, created)
}

func bulkUpdateHandler(c *gin.Context) {
	var sub reconcile.Submission
	if err := c.ShouldBindJSON(&sub); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	updated, err := applySubmission(sub)
	if err != nil {
		if errors.Is(err, reconcile.ErrEmptyBatch) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"month": sub.Month, "updated": updated})
}

// meterUsageShimHandler keeps the old query-param contract alive for field
// kiosks that submit by printed asset tag.
func meterUsageShimHandler(c *gin.Context) {
	assetTag := c.Query("asset_tag")
	month := c.Query("month")
	valueStr := c.Query("value")
	if assetTag == "" || month == "" || valueStr == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "asset_tag, month and value are required"})
		return
	}
	value, err := strconv.ParseInt(valueStr, 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "value must be an integer"})
		return
	}
	usage, err := submitByAssetTag(assetTag, month, value, c.Query("img_path"))
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, usage)
}

func uploadBillHandler(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}
	f, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	defer f.Close()

	ext := strings.ToLower(filepath.Ext(fileHeader.Filename))
	if ext == "" {
		ext = ".png"
	}
	key := uuid.NewString() + ext
	path, err := store.Put(c.Request.Context(), key, f, fileHeader.Size, fileHeader.Header.Get("Content-Type"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"filename": path})
}

// recognizedHandler runs server-side OCR over an uploaded register crop and
// returns the digits one by one, the contract the old recognizer service
// exposed.
func recognizedHandler(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}
	f, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	defer f.Close()
	img, err := imaging.Decode(f)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot decode image"})
		return
	}

	job := pipe.Recognize(c.Request.Context(), img)
	res, err := job.Wait(c.Request.Context())
	if err != nil {
		if errors.Is(err, recognize.ErrNoDigits) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	digits := make([]int, 0, res.Reading.Width())
	for i := 0; i < res.Reading.Width(); i++ {
		n, _ := strconv.Atoi(res.Reading.Digit(i))
		digits = append(digits, n)
	}
	c.JSON(http.StatusOK, gin.H{"recognized_array": digits})
}

func captureSnapHandler(c *gin.Context) {
	if session == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no camera configured"})
		return
	}
	var req struct {
		AssetTag string `json:"asset_tag" binding:"required"`
		Month    string `json:"month" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !models.ValidMonth(req.Month) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid month, want YYYY-MM"})
		return
	}
	key := req.Month + "/" + req.AssetTag + "-" + uuid.NewString() + ".png"
	snap, err := session.Take(c.Request.Context(), key)
	if err != nil {
		switch {
		case errors.Is(err, capture.ErrAuditUpload):
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		case errors.Is(err, recognize.ErrNoDigits):
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"token":    snap.Token,
		"preview":  snap.Preview,
		"raw":      snap.Raw,
		"digits":   digitArray(snap.Reading),
		"img_path": snap.ImgPath,
	})
}

func captureDigitHandler(c *gin.Context) {
	if session == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no camera configured"})
		return
	}
	var req struct {
		Token string `json:"token" binding:"required"`
		Index int    `json:"index"`
		Value string `json:"value"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	reading, err := session.SetDigit(req.Token, req.Index, req.Value)
	if err != nil {
		if errors.Is(err, capture.ErrStale) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": req.Token, "digits": digitArray(reading)})
}

// digitArray keeps one slot per register cell so clients can render by index;
// a cleared cell comes through as "".
func digitArray(r recognize.Reading) []string {
	out := make([]string, r.Width())
	for i := 0; i < r.Width(); i++ {
		out[i] = r.Digit(i)
	}
	return out
}
