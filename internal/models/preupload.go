package models

type FileMetas map[string]FileMeta

type FileTokens map[string]string

type PreUploadReq struct {
	Info  *DeviceInfo `json:"info"`
	Files FileMetas   `json:"files"`
}

type PreUploadResp struct {
	SessionId string     `json:"sessionId"`
	Tokens    FileTokens `json:"files"`
}
