package main

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"strategy-backtester/proto"
	"strategy-backtester/services/engine"
)

const arrowContentType = "application/vnd.apache.arrow.stream"

func (s *BacktestService) setupHTTPRoutes(r *gin.Engine) {
	r.Use(s.monitoring.GinMiddleware())
	r.GET("/metrics", gin.WrapH(s.monitoring.Handler()))

	api := r.Group("/api/v1")
	{
		api.POST("/backtest", s.handleBacktestRequest)
		api.POST("/backtest/arrow", s.handleArrowBacktest)
		api.GET("/backtest/:job_id", s.handleGetBacktestResult)
		api.GET("/backtest/:job_id/equity.arrow", s.handleEquityArrow)
		api.GET("/backtest/:job_id/ledger.arrow", s.handleLedgerArrow)
		api.GET("/presets", s.handlePresets)
		api.GET("/health", s.handleHealthCheck)
	}
}

func (s *BacktestService) handleBacktestRequest(c *gin.Context) {
	var req proto.BacktestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, proto.ErrInvalidParams.WithDetails(err.Error()))
		return
	}
	resp, err := s.ExecuteBacktest(c.Request.Context(), &req)
	s.respond(c, resp, err)
}

// handleArrowBacktest runs the preset named by ?strategy= over an Arrow IPC
// bar stream in the request body.
func (s *BacktestService) handleArrowBacktest(c *gin.Context) {
	preset := strings.ToLower(c.Query("strategy"))
	if preset == "" {
		s.writeError(c, proto.ErrInvalidParams.WithDetails("strategy query parameter is required"))
		return
	}
	bars, err := s.arrowPipeline.ReadBars(c.Request.Body)
	if err != nil {
		s.writeError(c, proto.ErrInvalidParams.WithDetails(err.Error()))
		return
	}
	resp, err := s.ExecuteBars(c.Request.Context(), preset, bars)
	s.respond(c, resp, err)
}

func (s *BacktestService) handleGetBacktestResult(c *gin.Context) {
	resp, err := s.GetBacktest(c.Request.Context(), &proto.GetBacktestRequest{JobID: c.Param("job_id")})
	s.respond(c, resp, err)
}

func (s *BacktestService) handleEquityArrow(c *gin.Context) {
	job, err := s.jobs.Get(c.Param("job_id"))
	if err != nil {
		s.writeError(c, proto.ErrNotFound.WithDetails(c.Param("job_id")))
		return
	}
	data, err := s.arrowPipeline.EncodeEquity(job.Result.ValueHistory)
	if err != nil {
		s.writeError(c, proto.ErrExecutionFailed.WithDetails(err.Error()))
		return
	}
	c.Data(http.StatusOK, arrowContentType, data)
}

func (s *BacktestService) handleLedgerArrow(c *gin.Context) {
	job, err := s.jobs.Get(c.Param("job_id"))
	if err != nil {
		s.writeError(c, proto.ErrNotFound.WithDetails(c.Param("job_id")))
		return
	}
	data, err := s.arrowPipeline.EncodeLedger(job.Result.Transactions)
	if err != nil {
		s.writeError(c, proto.ErrExecutionFailed.WithDetails(err.Error()))
		return
	}
	c.Data(http.StatusOK, arrowContentType, data)
}

func (s *BacktestService) handlePresets(c *gin.Context) {
	resp, _ := s.ListPresets(c.Request.Context(), &proto.ListPresetsRequest{})
	c.JSON(http.StatusOK, resp)
}

func (s *BacktestService) handleHealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": s.now().Unix(),
		"version":   engine.Version,
		"provider":  s.config.Data.Provider,
		"jobs":      s.jobs.Len(),
		"uptime":    time.Since(s.started).Round(time.Second).String(),
	})
}

// respond writes resp, or the error it carries, with the status the error
// taxonomy assigns.
func (s *BacktestService) respond(c *gin.Context, resp *proto.BacktestResponse, err error) {
	if err != nil {
		var apiErr *proto.APIError
		if !errors.As(err, &apiErr) {
			apiErr = proto.ErrExecutionFailed.WithDetails(err.Error())
		}
		s.writeError(c, apiErr)
		return
	}
	if resp.Error != nil {
		c.JSON(resp.Error.HTTPStatus(), resp)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *BacktestService) writeError(c *gin.Context, e *proto.APIError) {
	code := e.HTTPStatus()
	if code >= http.StatusInternalServerError {
		s.logger.Error("request failed", zap.String("path", c.FullPath()), zap.String("code", e.Code), zap.String("details", e.Details))
	}
	c.JSON(code, proto.BacktestResponse{Status: "failed", Error: e})
}
