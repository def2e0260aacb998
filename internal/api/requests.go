package api

import (
	"churn-service/internal/common"
	"churn-service/internal/features"
	"churn-service/internal/inference"
)

// PredictRequest is the JSON body of POST /predict. Field names use
// underscores in place of the spaces of the training column names.
type PredictRequest struct {
	TenureMonths    *float64 `json:"Tenure_Months" validate:"required,gte=0"`
	MonthlyCharges  *float64 `json:"Monthly_Charges" validate:"required,gte=0"`
	TotalCharges    *float64 `json:"Total_Charges" validate:"required,gte=0"`
	Contract        string   `json:"Contract" validate:"required"`
	PaymentMethod   string   `json:"Payment_Method" validate:"required"`
	InternetService string   `json:"Internet_Service" validate:"required"`

	PhoneService     *string `json:"Phone_Service,omitempty" validate:"omitempty,oneof=Yes No"`
	MultipleLines    *string `json:"Multiple_Lines,omitempty" validate:"omitempty,oneof=Yes No"`
	OnlineSecurity   *string `json:"Online_Security,omitempty" validate:"omitempty,oneof=Yes No"`
	OnlineBackup     *string `json:"Online_Backup,omitempty" validate:"omitempty,oneof=Yes No"`
	DeviceProtection *string `json:"Device_Protection,omitempty" validate:"omitempty,oneof=Yes No"`
	TechSupport      *string `json:"Tech_Support,omitempty" validate:"omitempty,oneof=Yes No"`
	StreamingTV      *string `json:"Streaming_TV,omitempty" validate:"omitempty,oneof=Yes No"`
	StreamingMovies  *string `json:"Streaming_Movies,omitempty" validate:"omitempty,oneof=Yes No"`
}

// BatchRequest is the JSON body of POST /predict/batch.
type BatchRequest struct {
	Records []PredictRequest `json:"records" validate:"required,min=1,dive"`
}

// PredictResponse is the JSON body returned by POST /predict.
type PredictResponse struct {
	ChurnProbability float64 `json:"churn_probability"`
	ChurnPrediction  int     `json:"churn_prediction"`
	Threshold        float64 `json:"threshold"`
}

// BatchResponse is the JSON body returned by POST /predict/batch.
type BatchResponse struct {
	Predictions []PredictResponse `json:"predictions"`
	Count       int               `json:"count"`
}

// RawRecord converts the request into a pipeline record keyed by training
// column names. Service flags left out of the request stay absent.
func (r PredictRequest) RawRecord() features.RawRecord {
	rec := features.RawRecord{
		common.FieldTenureMonths:    number(r.TenureMonths),
		common.FieldMonthlyCharges:  number(r.MonthlyCharges),
		common.FieldTotalCharges:    number(r.TotalCharges),
		common.FieldContract:        features.String(r.Contract),
		common.FieldPaymentMethod:   features.String(r.PaymentMethod),
		common.FieldInternetService: features.String(r.InternetService),
	}

	flags := map[string]*string{
		common.FieldPhoneService:     r.PhoneService,
		common.FieldMultipleLines:    r.MultipleLines,
		common.FieldOnlineSecurity:   r.OnlineSecurity,
		common.FieldOnlineBackup:     r.OnlineBackup,
		common.FieldDeviceProtection: r.DeviceProtection,
		common.FieldTechSupport:      r.TechSupport,
		common.FieldStreamingTV:      r.StreamingTV,
		common.FieldStreamingMovies:  r.StreamingMovies,
	}
	for field, v := range flags {
		if v != nil {
			rec[field] = features.String(*v)
		}
	}
	return rec
}

func number(v *float64) features.Value {
	if v == nil {
		return features.Null()
	}
	return features.Number(*v)
}

func toResponse(res inference.Result) PredictResponse {
	return PredictResponse{
		ChurnProbability: res.Probability,
		ChurnPrediction:  res.Label,
		Threshold:        res.Threshold,
	}
}
