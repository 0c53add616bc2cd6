package workflow

// Graph templates below mirror the node graphs deployed on the worker
// nodes. Node ids and class types must match the custom nodes installed
// there; treat these as data, not code.

const text2imgTemplate = `{
  "5": {
    "inputs": {"width": 1024, "height": 1024, "batch_size": 1},
    "class_type": "EmptyLatentImage",
    "_meta": {"title": "Empty Latent Image"}
  },
  "6": {
    "inputs": {"text": "$text", "clip": ["11", 0]},
    "class_type": "CLIPTextEncode",
    "_meta": {"title": "CLIP Text Encode (Prompt)"}
  },
  "8": {
    "inputs": {"samples": ["13", 0], "vae": ["10", 0]},
    "class_type": "VAEDecode",
    "_meta": {"title": "VAE Decode"}
  },
  "9": {
    "inputs": {"filename_prefix": "easel", "images": ["8", 0]},
    "class_type": "SaveImage",
    "_meta": {"title": "Save Image"}
  },
  "10": {
    "inputs": {"vae_name": "ae.safetensors"},
    "class_type": "VAELoader",
    "_meta": {"title": "Load VAE"}
  },
  "11": {
    "inputs": {"clip_name1": "t5xxl_fp8_e4m3fn.safetensors", "clip_name2": "clip_l.safetensors", "type": "flux"},
    "class_type": "DualCLIPLoader",
    "_meta": {"title": "DualCLIPLoader"}
  },
  "12": {
    "inputs": {"unet_name": "flux1-dev.safetensors", "weight_dtype": "fp8_e4m3fn"},
    "class_type": "UNETLoader",
    "_meta": {"title": "Load Diffusion Model"}
  },
  "13": {
    "inputs": {
      "seed": 0, "steps": 20, "cfg": 1, "sampler_name": "euler",
      "scheduler": "simple", "denoise": 1,
      "model": ["12", 0], "positive": ["6", 0], "negative": ["6", 0],
      "latent_image": ["5", 0]
    },
    "class_type": "KSampler",
    "_meta": {"title": "KSampler"}
  }
}`

const img2imgTemplate = `{
  "6": {
    "inputs": {"text": "$text", "clip": ["11", 0]},
    "class_type": "CLIPTextEncode",
    "_meta": {"title": "CLIP Text Encode (Prompt)"}
  },
  "8": {
    "inputs": {"samples": ["13", 0], "vae": ["10", 0]},
    "class_type": "VAEDecode",
    "_meta": {"title": "VAE Decode"}
  },
  "9": {
    "inputs": {"filename_prefix": "easel", "images": ["8", 0]},
    "class_type": "SaveImage",
    "_meta": {"title": "Save Image"}
  },
  "10": {
    "inputs": {"vae_name": "ae.safetensors"},
    "class_type": "VAELoader",
    "_meta": {"title": "Load VAE"}
  },
  "11": {
    "inputs": {"clip_name1": "t5xxl_fp8_e4m3fn.safetensors", "clip_name2": "clip_l.safetensors", "type": "flux"},
    "class_type": "DualCLIPLoader",
    "_meta": {"title": "DualCLIPLoader"}
  },
  "12": {
    "inputs": {"unet_name": "flux1-dev.safetensors", "weight_dtype": "fp8_e4m3fn"},
    "class_type": "UNETLoader",
    "_meta": {"title": "Load Diffusion Model"}
  },
  "13": {
    "inputs": {
      "seed": 0, "steps": 20, "cfg": 1, "sampler_name": "euler",
      "scheduler": "simple", "denoise": 0.75,
      "model": ["12", 0], "positive": ["6", 0], "negative": ["6", 0],
      "latent_image": ["15", 0]
    },
    "class_type": "KSampler",
    "_meta": {"title": "KSampler"}
  },
  "14": {
    "inputs": {"image": "$image", "upload": "image"},
    "class_type": "LoadImage",
    "_meta": {"title": "Load Image"}
  },
  "15": {
    "inputs": {"pixels": ["14", 0], "vae": ["10", 0]},
    "class_type": "VAEEncode",
    "_meta": {"title": "VAE Encode"}
  }
}`

const cleanFileTemplate = `{
  "6": {
    "inputs": {"type": "$type", "path": "$path"},
    "class_type": "Clean input and output file",
    "_meta": {"title": "file_cleaner"}
  }
}`
