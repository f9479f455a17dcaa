package services

// Services holds all service instances.
type Services struct {
	Upload *UploadService
}

func NewServices(upload *UploadService) *Services {
	return &Services{Upload: upload}
}
